// Package store owns the in-memory collection of projects, sessions and
// records. It is built for one writer (the ingest loop) and many readers:
// every mutation is applied under a short write lock, and readers get
// value copies so a half-applied batch is never observable.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
	"github.com/Xueheng-Li/cc-log-page/internal/parser"
	"github.com/Xueheng-Li/cc-log-page/internal/projpath"
)

// Batch is one ingest unit: whole parsed records appended to a single
// session, in file order.
type Batch struct {
	SessionID string
	ProjectID string
	Path      string
	Records   []model.Record
	Bytes     int64 // bytes consumed from the file for this batch
}

// ApplyResult describes what an ingest changed, for event fan-out.
type ApplyResult struct {
	SessionCreated bool
	Session        model.Session
	NewRecords     []model.Record
}

// Store is the single owner of Projects, Sessions and Records.
type Store struct {
	mu         sync.RWMutex
	projects   map[string]*model.Project
	sessions   map[string]*model.Session
	records    map[string][]model.Record
	lastIngest map[string]time.Time

	nextProjectOrder int
	nextSessionOrder int

	startTime time.Time
	window    []time.Time // ingest timestamps for the events-per-second gauge
}

func New() *Store {
	return &Store{
		projects:   make(map[string]*model.Project),
		sessions:   make(map[string]*model.Session),
		records:    make(map[string][]model.Record),
		lastIngest: make(map[string]time.Time),
		startTime:  time.Now(),
	}
}

// UpsertProject registers a project directory, returning a snapshot and
// whether it was newly created. Projects are never deleted.
func (s *Store) UpsertProject(id, path string, verified bool) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		p = &model.Project{
			ID:        id,
			Path:      path,
			ShortName: projpath.ShortName(path),
			Verified:  verified,
			FirstSeen: time.Now().UTC(),
			Order:     s.nextProjectOrder,
		}
		s.nextProjectOrder++
		s.projects[id] = p
	}
	return *p, !ok
}

// Ingest appends a batch of records to a session, creating the session on
// first sight. Aggregates only move forward: end time and counts never
// rewind, start time is set once.
func (s *Store) Ingest(b Batch) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess, ok := s.sessions[b.SessionID]
	created := !ok
	if created {
		sess = &model.Session{
			ID:        b.SessionID,
			ProjectID: b.ProjectID,
			Path:      b.Path,
			Order:     s.nextSessionOrder,
		}
		s.nextSessionOrder++
		s.sessions[b.SessionID] = sess
		if p, ok := s.projects[b.ProjectID]; ok {
			p.SessionCount++
		}
	}

	for i := range b.Records {
		rec := &b.Records[i]
		sess.MessageCount++
		if !rec.Timestamp.IsZero() {
			if sess.StartTime.IsZero() {
				sess.StartTime = rec.Timestamp
			}
			// End time only moves forward; out-of-order timestamps are
			// tolerated but never rewind the aggregate.
			if rec.Timestamp.After(sess.EndTime) {
				sess.EndTime = rec.Timestamp
			}
		}
		if sess.Model == "" && rec.Model != "" {
			sess.Model = rec.Model
		}
		if sess.Version == "" && rec.Version != "" {
			sess.Version = rec.Version
		}
		if sess.CWD == "" && rec.CWD != "" {
			sess.CWD = rec.CWD
		}
		if sess.GitBranch == "" && rec.GitBranch != "" {
			sess.GitBranch = rec.GitBranch
		}
		if sess.Slug == "" && rec.Slug != "" {
			sess.Slug = rec.Slug
		}
		if sess.FirstMessage == "" && rec.Kind == model.KindUser && !rec.IsMeta && rec.Text != "" {
			sess.FirstMessage = parser.Preview(*rec, 200)
		}
	}
	sess.SizeBytes += b.Bytes
	sess.Live = true

	s.records[b.SessionID] = append(s.records[b.SessionID], b.Records...)
	s.lastIngest[b.SessionID] = now
	s.window = append(s.window, now)

	if p, ok := s.projects[b.ProjectID]; ok {
		if now.After(p.LastActive) {
			p.LastActive = now
		}
		p.SizeBytes += b.Bytes
	}

	return ApplyResult{
		SessionCreated: created,
		Session:        *sess,
		NewRecords:     b.Records,
	}
}

// ExpireLive clears the live flag on sessions that have not been ingested
// into within ttl, returning snapshots of the sessions that changed.
func (s *Store) ExpireLive(ttl time.Duration) []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	var expired []model.Session
	for id, sess := range s.sessions {
		if sess.Live && s.lastIngest[id].Before(cutoff) {
			sess.Live = false
			expired = append(expired, *sess)
		}
	}
	return expired
}

// GetProject returns a snapshot of one project.
func (s *Store) GetProject(id string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, false
	}
	return *p, true
}

// GetSession returns a snapshot of one session's aggregates.
func (s *Store) GetSession(id string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	return *sess, true
}

// GetRecords returns a copy of a session's ordered records.
func (s *Store) GetRecords(sessionID string) []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[sessionID]
	out := make([]model.Record, len(recs))
	copy(out, recs)
	return out
}

// ListProjects returns project snapshots sorted by the given key.
// Sorts are stable: equal keys keep discovery order.
func (s *Store) ListProjects(sortBy, order string) []model.Project {
	s.mu.RLock()
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })

	desc := order != "asc"
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		switch sortBy {
		case "first_seen":
			return a.FirstSeen.Before(b.FirstSeen)
		case "session_count":
			return a.SessionCount < b.SessionCount
		case "name":
			return strings.ToLower(a.ShortName) < strings.ToLower(b.ShortName)
		default: // last_active
			return a.LastActive.Before(b.LastActive)
		}
	})
	return out
}

// ListSessions returns session snapshots for a project with paging.
// The second return value is the total count before paging.
func (s *Store) ListSessions(projectID, sortBy, order string, limit, offset int) ([]model.Session, int) {
	s.mu.RLock()
	var out []model.Session
	for _, sess := range s.sessions {
		if sess.ProjectID == projectID {
			out = append(out, *sess)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })

	desc := order != "asc"
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		switch sortBy {
		case "end_time":
			return a.EndTime.Before(b.EndTime)
		case "message_count":
			return a.MessageCount < b.MessageCount
		case "size":
			return a.SizeBytes < b.SizeBytes
		default: // start_time
			return a.StartTime.Before(b.StartTime)
		}
	})

	total := len(out)
	if offset >= total {
		return nil, total
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total
}

