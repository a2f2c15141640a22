package model

import "time"

// Project is one logical source directory under the projects root.
type Project struct {
	ID           string    `json:"id"` // encoded directory name as found on disk
	Path         string    `json:"path"`
	ShortName    string    `json:"short_name"`
	Verified     bool      `json:"verified"` // false when the decoded path could not be confirmed on disk
	FirstSeen    time.Time `json:"first_seen"`
	LastActive   time.Time `json:"last_active,omitempty"`
	SessionCount int       `json:"session_count"`
	SizeBytes    int64     `json:"size_bytes"`

	// Order is the discovery position, used as a stable sort tiebreak.
	Order int `json:"-"`
}

// Session is one log file's worth of records sharing a session id.
type Session struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Path         string    `json:"-"`
	StartTime    time.Time `json:"start_time,omitempty"`
	EndTime      time.Time `json:"end_time,omitempty"`
	MessageCount int       `json:"message_count"`
	SizeBytes    int64     `json:"size_bytes"`
	FirstMessage string    `json:"first_message"`
	Model        string    `json:"model,omitempty"`
	Version      string    `json:"version,omitempty"`
	CWD          string    `json:"cwd,omitempty"`
	GitBranch    string    `json:"git_branch,omitempty"`
	Slug         string    `json:"slug,omitempty"`
	Live         bool      `json:"live"`

	Order int `json:"-"`
}

// Duration returns the elapsed time between the first and last record,
// or zero when either timestamp is missing.
func (s *Session) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	d := s.EndTime.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}
