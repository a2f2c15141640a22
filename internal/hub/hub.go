// Package hub fans out change events to live viewers. Delivery is
// best-effort and non-blocking per subscriber: a full queue drops the
// subscriber, never the ingestion path.
package hub

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
)

// DefaultQueueSize bounds each subscriber's outbound queue.
const DefaultQueueSize = 64

type subscriber struct {
	id       string
	ch       chan model.Event
	sessions map[string]struct{}
	projects map[string]struct{}
}

// wants applies the filter sets. A nil set means unfiltered; a non-nil
// empty set (everything unwatched) matches no id-bearing event.
func (s *subscriber) wants(ev model.Event) bool {
	if s.sessions != nil && ev.SessionID != "" {
		if _, ok := s.sessions[ev.SessionID]; !ok {
			return false
		}
	}
	if s.projects != nil && ev.ProjectID != "" {
		if _, ok := s.projects[ev.ProjectID]; !ok {
			return false
		}
	}
	return true
}

// Hub holds live subscriptions and routes events to them.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	queueSize int
	dropped   atomic.Int64
}

func New(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[string]*subscriber),
		queueSize: queueSize,
	}
}

// Subscribe registers a viewer interested in the given session and project
// ids; empty slices mean everything. Calling Subscribe again for an existing
// id replaces the subscription sets and returns the same channel.
func (h *Hub) Subscribe(id string, sessionIDs, projectIDs []string) <-chan model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		sub = &subscriber{id: id, ch: make(chan model.Event, h.queueSize)}
		h.subs[id] = sub
	}
	sub.sessions = toSet(sessionIDs)
	sub.projects = toSet(projectIDs)
	return sub.ch
}

// Unwatch removes the given ids from a viewer's filter sets, leaving the
// rest of its subscription intact. Unknown ids and unfiltered viewers are
// unaffected.
func (h *Hub) Unwatch(id string, sessionIDs, projectIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	for _, sid := range sessionIDs {
		delete(sub.sessions, sid)
	}
	for _, pid := range projectIDs {
		delete(sub.projects, pid)
	}
}

// Unsubscribe removes a viewer and closes its channel. Safe to call for an
// unknown id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Publish delivers an event to every subscriber whose subscription set
// intersects the affected ids. A subscriber whose queue is full is dropped
// with a best-effort resync notice so it can re-fetch.
func (h *Hub) Publish(ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			delete(h.subs, id)
			select {
			case sub.ch <- model.Event{Type: model.EventResync, Timestamp: ev.Timestamp}:
			default:
			}
			close(sub.ch)
			log.Printf("hub: dropped slow subscriber %s (total dropped: %d)", id, h.dropped.Load())
		}
	}
}

// Dropped returns how many subscribers were dropped for falling behind.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops all subscribers, closing their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func toSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
