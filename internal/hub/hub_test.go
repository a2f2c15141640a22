package hub

import (
	"testing"
	"time"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New(8)
	ch1 := h.Subscribe("viewer-1", nil, nil)
	ch2 := h.Subscribe("viewer-2", nil, nil)

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-1", ProjectID: "p-1"})

	for _, ch := range []<-chan model.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != model.EventNewRecord {
				t.Errorf("expected new_record, got %s", ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSubscriptionFiltering(t *testing.T) {
	h := New(8)
	sessionOnly := h.Subscribe("by-session", []string{"s-1"}, nil)
	projectOnly := h.Subscribe("by-project", nil, []string{"p-2"})

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-9", ProjectID: "p-1"})

	select {
	case ev := <-sessionOnly:
		t.Fatalf("session filter leaked event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case ev := <-projectOnly:
		t.Fatalf("project filter leaked event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-1", ProjectID: "p-2"})

	select {
	case <-sessionOnly:
	case <-time.After(time.Second):
		t.Fatal("session subscriber missed matching event")
	}
	select {
	case <-projectOnly:
	case <-time.After(time.Second):
		t.Fatal("project subscriber missed matching event")
	}
}

func TestProjectEventPassesSessionFilter(t *testing.T) {
	h := New(8)
	// A subscriber filtered to one session still hears project-level events
	// for projects it watches implicitly (no project filter set).
	ch := h.Subscribe("viewer", []string{"s-1"}, nil)

	h.Publish(model.Event{Type: model.EventNewProject, ProjectID: "p-7"})

	select {
	case ev := <-ch:
		if ev.Type != model.EventNewProject {
			t.Errorf("expected new_project, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected project event to pass a session-only filter")
	}
}

func TestSlowSubscriberDroppedOthersUnaffected(t *testing.T) {
	h := New(4)
	slow := h.Subscribe("slow", nil, nil)
	fast := h.Subscribe("fast", nil, nil)

	// Overflow the slow subscriber's queue without reading it.
	for i := 0; i < 10; i++ {
		h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-1"})
		// Keep the fast subscriber drained.
		select {
		case <-fast:
		case <-time.After(time.Second):
			t.Fatal("fast subscriber starved")
		}
	}

	if h.Dropped() == 0 {
		t.Error("expected the slow subscriber to be dropped")
	}
	if h.Count() != 1 {
		t.Errorf("expected 1 remaining subscriber, got %d", h.Count())
	}

	// The slow channel ends with the buffered backlog, then a resync or
	// close; it must be closed.
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-slow:
			if !ok {
				return
			}
			_ = ev
		case <-timeout:
			t.Fatal("slow subscriber channel never closed")
		}
	}
}

func TestUnsubscribeRemovesOnlyTarget(t *testing.T) {
	h := New(8)
	ch1 := h.Subscribe("a", nil, nil)
	h.Subscribe("b", nil, nil)

	h.Unsubscribe("a")
	if _, ok := <-ch1; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if h.Count() != 1 {
		t.Errorf("expected 1 subscriber left, got %d", h.Count())
	}

	// Unknown ids are a no-op.
	h.Unsubscribe("never-existed")
}

func TestUnwatchRemovesOnlyNamedIDs(t *testing.T) {
	h := New(8)
	ch := h.Subscribe("viewer", []string{"s-1", "s-2"}, nil)

	h.Unwatch("viewer", []string{"s-1"}, nil)

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-1"})
	select {
	case ev := <-ch:
		t.Fatalf("unwatched session still delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-2"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("remaining subscription lost")
	}
}

func TestUnwatchLastIDSilencesNotWidens(t *testing.T) {
	h := New(8)
	ch := h.Subscribe("viewer", []string{"s-1"}, nil)

	h.Unwatch("viewer", []string{"s-1"}, nil)

	// With every watched session removed, the viewer must hear nothing
	// session-scoped rather than falling back to everything.
	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-9"})
	select {
	case ev := <-ch:
		t.Fatalf("emptied filter widened to everything: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// A fresh subscribe restores delivery.
	h.Subscribe("viewer", nil, nil)
	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-9"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("resubscribe did not restore delivery")
	}
}

func TestUnwatchUnfilteredViewerIsNoOp(t *testing.T) {
	h := New(8)
	ch := h.Subscribe("viewer", nil, nil)

	h.Unwatch("viewer", []string{"s-1"}, nil)
	h.Unwatch("never-existed", []string{"s-1"}, nil)

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-1"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("unfiltered viewer must stay unfiltered")
	}
}

func TestResubscribeUpdatesFilters(t *testing.T) {
	h := New(8)
	ch := h.Subscribe("viewer", []string{"s-1"}, nil)
	h.Subscribe("viewer", []string{"s-2"}, nil)

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-1"})
	select {
	case ev := <-ch:
		t.Fatalf("old filter still active: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	h.Publish(model.Event{Type: model.EventNewRecord, SessionID: "s-2"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("updated filter not applied")
	}

	if h.Count() != 1 {
		t.Errorf("resubscribe must not duplicate, got %d", h.Count())
	}
}
