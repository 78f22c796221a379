package dto

import (
	"time"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
)

// CreateSessionRequest captures POST /sessions payload. A nil expiry uses the
// configured default.
type CreateSessionRequest struct {
	ClassID       string `json:"class_id" validate:"required,max=64"`
	SubjectID     string `json:"subject_id" validate:"required,max=64"`
	Code          string `json:"code" validate:"required,max=64"`
	ExpiryMinutes *int   `json:"expiry_minutes,omitempty" validate:"omitempty,min=1"`
}

// SessionView is a session with its derived lifecycle fields.
type SessionView struct {
	models.Session
	ExpiresAt time.Time           `json:"expires_at"`
	State     models.SessionState `json:"state"`
}

// NewSessionView derives the view of s at now.
func NewSessionView(s models.Session, now time.Time) SessionView {
	return SessionView{Session: s, ExpiresAt: s.ExpiresAt(), State: s.StateAt(now)}
}

// NewSessionViews maps a slice of sessions.
func NewSessionViews(sessions []models.Session, now time.Time) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, NewSessionView(s, now))
	}
	return out
}

// DeactivateSessionResponse reports whether the call changed the session.
type DeactivateSessionResponse struct {
	SessionID string `json:"session_id"`
	Changed   bool   `json:"changed"`
}

// SweepResponse lists the sessions a sweep deactivated.
type SweepResponse struct {
	Deactivated []string  `json:"deactivated"`
	SweptAt     time.Time `json:"swept_at"`
}
