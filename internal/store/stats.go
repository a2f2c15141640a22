package store

import (
	"time"
)

// epsWindow is the sliding window used for the ingest-rate gauge.
const epsWindow = 5 * time.Second

// Stats is a point-in-time snapshot of store-wide aggregates.
type Stats struct {
	Uptime          string    `json:"uptime"`
	TotalProjects   int       `json:"total_projects"`
	TotalSessions   int       `json:"total_sessions"`
	TotalRecords    int       `json:"total_records"`
	TotalSizeBytes  int64     `json:"total_size_bytes"`
	OldestSession   time.Time `json:"oldest_session,omitempty"`
	NewestSession   time.Time `json:"newest_session,omitempty"`
	IngestPerSecond float64   `json:"ingest_per_second"`
	LiveSessions    int       `json:"live_sessions"`
}

// Stats computes the current aggregates. The ingest-rate gauge counts batch
// applications over the last five seconds.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Prune the sliding window in place while we hold the lock anyway.
	cutoff := time.Now().Add(-epsWindow)
	i := 0
	for _, t := range s.window {
		if t.After(cutoff) {
			s.window[i] = t
			i++
		}
	}
	s.window = s.window[:i]

	st := Stats{
		Uptime:          time.Since(s.startTime).Truncate(time.Second).String(),
		TotalProjects:   len(s.projects),
		TotalSessions:   len(s.sessions),
		IngestPerSecond: float64(i) / epsWindow.Seconds(),
	}
	for _, recs := range s.records {
		st.TotalRecords += len(recs)
	}
	for _, p := range s.projects {
		st.TotalSizeBytes += p.SizeBytes
	}
	for _, sess := range s.sessions {
		if sess.Live {
			st.LiveSessions++
		}
		if sess.StartTime.IsZero() {
			continue
		}
		if st.OldestSession.IsZero() || sess.StartTime.Before(st.OldestSession) {
			st.OldestSession = sess.StartTime
		}
		if sess.StartTime.After(st.NewestSession) {
			st.NewestSession = sess.StartTime
		}
	}
	return st
}
