package dto

import "github.com/noah-isme/attendance-ledger-api/internal/models"

// ResolveRequest captures POST /checkin/resolve payload.
type ResolveRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// ResolveResponse returns the live session and the participants that may
// check in to it.
type ResolveResponse struct {
	Session      SessionView          `json:"session"`
	Participants []models.Participant `json:"participants"`
}

// CheckInRequest captures POST /checkin payload.
type CheckInRequest struct {
	Code          string `json:"code" validate:"required,max=64"`
	ParticipantID string `json:"participant_id" validate:"required,max=64"`
	PhotoRef      string `json:"photo_ref,omitempty" validate:"omitempty,max=512"`
}

// CheckInResponse is the outcome of a check-in.
type CheckInResponse struct {
	Outcome models.SubmitOutcome     `json:"outcome"`
	Session SessionView              `json:"session"`
	Record  *models.AttendanceRecord `json:"record,omitempty"`
}

// AttendanceStatusQuery captures GET /attendance/status parameters.
type AttendanceStatusQuery struct {
	SessionID     string `form:"session_id" validate:"required,max=64"`
	ParticipantID string `form:"participant_id" validate:"required,max=64"`
}

// AttendanceStatusResponse is advisory; a later submit may still race.
type AttendanceStatusResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Recorded      bool   `json:"recorded"`
}
