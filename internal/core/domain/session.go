package domain

import "time"

// ScanSession is one logical scan run. Detections reference sessions by an
// opaque string id; AdhocSession is used when none is active.
type ScanSession struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Active reports whether the session is still running.
func (s *ScanSession) Active() bool { return s.FinishedAt == nil }
