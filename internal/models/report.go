package models

import "time"

// PresenceStatus is a single cell of the presence matrix.
type PresenceStatus string

const (
	PresencePresent PresenceStatus = "present"
	PresenceAbsent  PresenceStatus = "absent"
)

// PresenceColumn describes one session column.
type PresenceColumn struct {
	SessionID   string    `json:"session_id"`
	Code        string    `json:"code"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PresenceRow is one participant with a cell per column and the summary.
type PresenceRow struct {
	ParticipantID string           `json:"participant_id"`
	RollNumber    string           `json:"roll_number"`
	DisplayName   string           `json:"display_name"`
	EnrollmentRef string           `json:"enrollment_ref"`
	Cells         []PresenceStatus `json:"cells"`
	PresentCount  int              `json:"present_count"`
	// Percentage is present/total*100 rounded half-up to two decimals.
	Percentage float64 `json:"percentage"`
}

// PresenceMatrix is the presence report for one class.
type PresenceMatrix struct {
	ClassID       string           `json:"class_id"`
	ClassName     string           `json:"class_name,omitempty"`
	SubjectID     string           `json:"subject_id,omitempty"`
	Columns       []PresenceColumn `json:"columns"`
	Rows          []PresenceRow    `json:"rows"`
	TotalSessions int              `json:"total_sessions"`
	GeneratedAt   time.Time        `json:"generated_at"`
}
