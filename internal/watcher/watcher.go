// Package watcher observes the projects directory tree and reports session
// file changes. Rapid successive writes to one file are coalesced into a
// single event per debounce window.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// sessionGlob matches session log files relative to the projects root.
const sessionGlob = "*/*.jsonl"

// Op classifies a watcher event.
type Op int

const (
	OpCreate Op = iota // new session file discovered
	OpWrite            // session file grew
	OpRemove           // session file disappeared
	OpNewDir           // new project directory appeared
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpNewDir:
		return "new_dir"
	}
	return "unknown"
}

// Event is one coalesced filesystem change.
type Event struct {
	Path string
	Op   Op
}

// Watcher monitors the projects root using OS-level notifications.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration

	Events chan Event

	mu     sync.Mutex
	timers map[string]*time.Timer
	files  []string // session files present at startup
}

// New creates a Watcher over root. Existing project directories are
// registered immediately; their session files are available via Paths.
func New(root string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		Events:   make(chan Event, 256),
		timers:   make(map[string]*time.Timer),
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if err := fsw.Add(dir); err != nil {
			log.Printf("watcher: cannot watch %s: %v", dir, err)
		}
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(root, sessionGlob), doublestar.WithFilesOnly())
	if err != nil {
		log.Printf("watcher: initial scan failed: %v", err)
	}
	for _, m := range matches {
		if IsSessionFile(m) {
			w.files = append(w.files, m)
		}
	}

	return w, nil
}

// Paths returns the session files found during the initial scan.
func (w *Watcher) Paths() []string {
	return w.files
}

// IsSessionFile reports whether path names a real session log file,
// excluding hidden files and macOS resource forks.
func IsSessionFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".jsonl") && !strings.HasPrefix(name, ".")
}

// Start listens for filesystem events until the context is cancelled.
// The Events channel is intentionally never closed: debounce timers may
// still fire during shutdown, and consumers stop via the same context.
func (w *Watcher) Start(ctx context.Context) {
	defer func() {
		w.fsw.Close()
		w.mu.Lock()
		for path, t := range w.timers {
			t.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addProjectDir(ev.Name)
			return
		}
		if IsSessionFile(ev.Name) {
			w.send(Event{Path: ev.Name, Op: OpCreate})
		}

	case ev.Op&fsnotify.Write != 0:
		if IsSessionFile(ev.Name) {
			w.scheduleWrite(ev.Name)
		}

	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		if IsSessionFile(ev.Name) {
			w.cancelTimer(ev.Name)
			w.send(Event{Path: ev.Name, Op: OpRemove})
		}
	}
}

// send enqueues an event without ever blocking the notification loop. A
// full buffer drops the event with a log line; every producer path shares
// this policy.
func (w *Watcher) send(ev Event) {
	select {
	case w.Events <- ev:
	default:
		log.Printf("watcher: event buffer full, dropping %s for %s", ev.Op, ev.Path)
	}
}

// addProjectDir registers a newly created project directory and announces
// any session files it already contains.
func (w *Watcher) addProjectDir(dir string) {
	if filepath.Dir(dir) != w.root {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		log.Printf("watcher: cannot watch new dir %s: %v", dir, err)
		return
	}
	w.send(Event{Path: dir, Op: OpNewDir})

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() && IsSessionFile(path) {
			w.send(Event{Path: path, Op: OpCreate})
		}
	}
}

// scheduleWrite coalesces write bursts: the event fires once the file has
// been quiet for a full debounce window.
func (w *Watcher) scheduleWrite(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		w.send(Event{Path: path, Op: OpWrite})
	})
}

func (w *Watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}
