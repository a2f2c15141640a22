package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestInitialScanFindsSessionFiles(t *testing.T) {
	root := t.TempDir()
	projDir := filepath.Join(root, "-Users-alice-proj")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	sessionPath := filepath.Join(projDir, "sess-1.jsonl")
	if err := os.WriteFile(sessionPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Hidden and non-jsonl files are ignored.
	os.WriteFile(filepath.Join(projDir, "._sess-1.jsonl"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(projDir, "notes.txt"), []byte("x"), 0o644)

	w, err := New(root, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.fsw.Close()

	paths := w.Paths()
	if len(paths) != 1 || paths[0] != sessionPath {
		t.Errorf("expected [%s], got %v", sessionPath, paths)
	}
}

func TestWriteBurstCoalescesToOneEvent(t *testing.T) {
	root := t.TempDir()
	projDir := filepath.Join(root, "-Users-alice-proj")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	sessionPath := filepath.Join(projDir, "sess-1.jsonl")
	if err := os.WriteFile(sessionPath, []byte("line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(200 * time.Millisecond)

	// Three rapid appends within the debounce window.
	f, err := os.OpenFile(sessionPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.WriteString("more\n"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.Close()

	// Exactly one coalesced write event arrives.
	select {
	case ev := <-w.Events:
		if ev.Op != OpWrite || ev.Path != sessionPath {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write event")
	}

	select {
	case ev := <-w.Events:
		t.Fatalf("expected burst coalesced into one event, got extra %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewProjectDirAndSessionDiscovered(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(200 * time.Millisecond)

	projDir := filepath.Join(root, "-Users-bob-newproj")
	if err := os.Mkdir(projDir, 0o755); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events:
		if ev.Op != OpNewDir || ev.Path != projDir {
			t.Fatalf("expected new-dir event, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for new-dir event")
	}

	// A session file created inside the new directory is picked up.
	time.Sleep(100 * time.Millisecond)
	sessionPath := filepath.Join(projDir, "sess-9.jsonl")
	if err := os.WriteFile(sessionPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events:
			if ev.Op == OpCreate && ev.Path == sessionPath {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for create event")
		}
	}
}

func TestFullEventBufferNeverBlocksNotifications(t *testing.T) {
	root := t.TempDir()
	projDir := filepath.Join(root, "-Users-alice-proj")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	sessionPath := filepath.Join(projDir, "sess-1.jsonl")
	if err := os.WriteFile(sessionPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.fsw.Close()

	// Fill the buffer so every further send hits the drop path.
	for i := 0; i < cap(w.Events); i++ {
		w.Events <- Event{}
	}

	done := make(chan struct{})
	go func() {
		w.handle(fsnotify.Event{Name: sessionPath, Op: fsnotify.Create})
		w.handle(fsnotify.Event{Name: sessionPath, Op: fsnotify.Remove})
		w.addProjectDir(projDir)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification handling blocked on a full event buffer")
	}
}

func TestIsSessionFile(t *testing.T) {
	cases := map[string]bool{
		"/p/abc.jsonl":    true,
		"/p/._abc.jsonl":  false,
		"/p/.abc.jsonl":   false,
		"/p/abc.json":     false,
		"/p/abc.jsonl.gz": false,
	}
	for path, want := range cases {
		if got := IsSessionFile(path); got != want {
			t.Errorf("IsSessionFile(%q) = %v, want %v", path, got, want)
		}
	}
}
