package model

import "time"

// EventType identifies a change event fanned out to live viewers.
type EventType string

const (
	EventNewProject     EventType = "new_project"
	EventNewSession     EventType = "new_session"
	EventNewRecord      EventType = "new_record"
	EventSessionUpdated EventType = "session_updated"

	// EventResync is sent as the final event before a subscriber is dropped
	// for falling behind; the client should re-fetch its view.
	EventResync EventType = "resync"
)

// Event is one change notification. It carries enough identifiers for a
// consumer to patch its local view or decide to re-fetch.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ProjectID string    `json:"project_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Preview   string    `json:"preview,omitempty"`
	Project   *Project  `json:"project,omitempty"`
	Session   *Session  `json:"session,omitempty"`
}
