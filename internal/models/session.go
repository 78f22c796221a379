package models

import "time"

// SessionState describes where a session sits in its lifecycle at a given instant.
type SessionState string

const (
	SessionStateActive   SessionState = "active"
	SessionStateExpired  SessionState = "expired"
	SessionStateInactive SessionState = "inactive"
)

// Session is a time-boxed, code-addressable window during which attendance may
// be recorded for one class/subject pairing. Sessions are never deleted.
type Session struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	ClassID       string    `db:"class_id" json:"class_id"`
	ClassName     string    `db:"class_name" json:"class_name,omitempty"`
	SubjectID     string    `db:"subject_id" json:"subject_id"`
	SubjectName   string    `db:"subject_name" json:"subject_name,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiryMinutes int       `db:"expiry_minutes" json:"expiry_minutes"`
	Active        bool      `db:"active" json:"active"`
}

// ExpiresAt returns the last instant at which the session is still valid.
func (s Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(time.Duration(s.ExpiryMinutes) * time.Minute)
}

// ValidAt reports whether the session accepts check-ins at t. The expiry
// boundary is inclusive.
func (s Session) ValidAt(t time.Time) bool {
	return s.Active && !t.After(s.ExpiresAt())
}

// StateAt derives the lifecycle state at t.
func (s Session) StateAt(t time.Time) SessionState {
	switch {
	case !s.Active:
		return SessionStateInactive
	case t.After(s.ExpiresAt()):
		return SessionStateExpired
	default:
		return SessionStateActive
	}
}

// SessionFilter scopes session listings used by reports.
type SessionFilter struct {
	ClassID   string
	SubjectID string
	From      *time.Time
	To        *time.Time
}

// Matches reports whether s falls inside the filter.
func (f SessionFilter) Matches(s Session) bool {
	if f.ClassID != "" && s.ClassID != f.ClassID {
		return false
	}
	if f.SubjectID != "" && s.SubjectID != f.SubjectID {
		return false
	}
	if f.From != nil && s.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && s.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
