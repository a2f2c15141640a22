// Package ingest drives the write path: watcher events are turned into
// tail reads, parsed records, store batches, search documents and hub
// events, in that order. It is the only writer of the store and the index;
// records within one session are applied in strict file order.
package ingest

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/Xueheng-Li/cc-log-page/internal/hub"
	"github.com/Xueheng-Li/cc-log-page/internal/model"
	"github.com/Xueheng-Li/cc-log-page/internal/parser"
	"github.com/Xueheng-Li/cc-log-page/internal/projpath"
	"github.com/Xueheng-Li/cc-log-page/internal/search"
	"github.com/Xueheng-Li/cc-log-page/internal/store"
	"github.com/Xueheng-Li/cc-log-page/internal/tailer"
	"github.com/Xueheng-Li/cc-log-page/internal/watcher"
)

// liveTTL is how long a session stays flagged live after its last ingest.
const liveTTL = 5 * time.Second

// Ingestor owns the single-writer ingest loop.
type Ingestor struct {
	store   *store.Store
	index   *search.Index
	hub     *hub.Hub
	parser  *parser.Parser
	tailer  *tailer.Tailer
	decoder *projpath.Decoder
	events  <-chan watcher.Event
}

// New wires an Ingestor. events is the watcher's output channel; decoder
// resolves encoded project directory names.
func New(st *store.Store, idx *search.Index, h *hub.Hub, dec *projpath.Decoder, events <-chan watcher.Event) *Ingestor {
	return &Ingestor{
		store:   st,
		index:   idx,
		hub:     h,
		parser:  parser.New(),
		tailer:  tailer.New(),
		decoder: dec,
		events:  events,
	}
}

// Malformed returns the count of rejected lines, for stats and health.
func (in *Ingestor) Malformed() int64 { return in.parser.Malformed() }

// Bootstrap registers the known project directories and fully parses the
// given session files, populating the store and index without emitting hub
// events. Called once before Run.
func (in *Ingestor) Bootstrap(projectDirs, sessionFiles []string) {
	for _, name := range projectDirs {
		in.ensureProject(name)
	}
	for _, path := range sessionFiles {
		in.ingestFile(path, false)
	}
}

// Run consumes watcher events until the context is cancelled.
func (in *Ingestor) Run(ctx context.Context) {
	liveTicker := time.NewTicker(time.Second)
	defer liveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-in.events:
			if !ok {
				return
			}
			switch ev.Op {
			case watcher.OpNewDir:
				in.announceProject(filepath.Base(ev.Path))
			case watcher.OpCreate, watcher.OpWrite:
				in.ingestFile(ev.Path, true)
			case watcher.OpRemove:
				// Disappearance is a benign end-of-stream; the session's
				// ingested records stay visible.
				in.tailer.Forget(ev.Path)
			}

		case <-liveTicker.C:
			for _, sess := range in.store.ExpireLive(liveTTL) {
				s := sess
				in.hub.Publish(model.Event{
					Type:      model.EventSessionUpdated,
					Timestamp: time.Now().UTC(),
					ProjectID: s.ProjectID,
					SessionID: s.ID,
					Session:   &s,
				})
			}
		}
	}
}

// ingestFile tail-reads a session file and applies whatever new whole lines
// appeared. With emit set, resulting changes are published to the hub.
func (in *Ingestor) ingestFile(path string, emit bool) {
	batch, err := in.tailer.ReadNew(path)
	if err != nil {
		// Permission and transient read errors; retried on the next event.
		log.Printf("ingest: cannot read %s: %v", path, err)
		return
	}
	if len(batch.Lines) == 0 {
		return
	}

	projectID := filepath.Base(filepath.Dir(path))
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	projectCreated := in.ensureProject(projectID)

	records := make([]model.Record, 0, len(batch.Lines))
	for _, line := range batch.Lines {
		rec, err := in.parser.Parse(line.Text, line.Ordinal)
		if err != nil {
			log.Printf("ingest: skipping malformed line %d of %s: %v", line.Ordinal, path, err)
			continue
		}
		if rec.SessionID == "" {
			rec.SessionID = sessionID
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return
	}

	res := in.store.Ingest(store.Batch{
		SessionID: sessionID,
		ProjectID: projectID,
		Path:      path,
		Records:   records,
		Bytes:     batch.Bytes,
	})

	for _, rec := range res.NewRecords {
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		in.index.Add(search.Document{
			RecordID:  rec.UUID,
			SessionID: rec.SessionID,
			ProjectID: projectID,
			Role:      rec.Role,
			Timestamp: rec.Timestamp,
			Text:      rec.Text,
		})
	}

	if !emit {
		return
	}
	now := time.Now().UTC()

	if projectCreated {
		if p, ok := in.store.GetProject(projectID); ok {
			proj := p
			in.hub.Publish(model.Event{
				Type:      model.EventNewProject,
				Timestamp: now,
				ProjectID: projectID,
				Project:   &proj,
			})
		}
	}
	if res.SessionCreated {
		sess := res.Session
		in.hub.Publish(model.Event{
			Type:      model.EventNewSession,
			Timestamp: now,
			ProjectID: projectID,
			SessionID: sessionID,
			Session:   &sess,
		})
	}
	for _, rec := range res.NewRecords {
		in.hub.Publish(model.Event{
			Type:      model.EventNewRecord,
			Timestamp: now,
			ProjectID: projectID,
			SessionID: sessionID,
			RecordID:  rec.UUID,
			Role:      rec.Role,
			Preview:   parser.Preview(rec, 200),
		})
	}
	sess := res.Session
	in.hub.Publish(model.Event{
		Type:      model.EventSessionUpdated,
		Timestamp: now,
		ProjectID: projectID,
		SessionID: sessionID,
		Session:   &sess,
	})
}

// ensureProject registers the project for an encoded directory name,
// reporting whether it was new.
func (in *Ingestor) ensureProject(projectID string) bool {
	path, verified := in.decoder.Decode(projectID)
	_, created := in.store.UpsertProject(projectID, path, verified)
	return created
}

// announceProject handles a new project directory event.
func (in *Ingestor) announceProject(projectID string) {
	if !in.ensureProject(projectID) {
		return
	}
	if p, ok := in.store.GetProject(projectID); ok {
		proj := p
		in.hub.Publish(model.Event{
			Type:      model.EventNewProject,
			Timestamp: time.Now().UTC(),
			ProjectID: projectID,
			Project:   &proj,
		})
	}
}
