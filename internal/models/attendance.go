package models

import (
	"fmt"
	"time"
)

// AttendanceSchemaVersion is written on every new record. Version 1 records
// carry only the session, participant and snapshot fields.
const AttendanceSchemaVersion = 2

// SubmitOutcome is the successful result of a ledger submission.
type SubmitOutcome string

const (
	OutcomeAccepted        SubmitOutcome = "accepted"
	OutcomeAlreadyRecorded SubmitOutcome = "already_recorded"
)

// ParticipantSnapshot is a denormalised copy of the participant's display
// fields taken when the record is accepted.
type ParticipantSnapshot struct {
	RollNumber    string `db:"roll_number" json:"roll_number,omitempty"`
	DisplayName   string `db:"display_name" json:"display_name,omitempty"`
	EnrollmentRef string `db:"enrollment_ref" json:"enrollment_ref,omitempty"`
}

// AttendancePayload is the caller supplied part of a submission.
type AttendancePayload struct {
	Snapshot  ParticipantSnapshot
	ClassID   string
	SubjectID string
	PhotoRef  string
}

// AttendanceRecord is one accepted submission. The pair (SessionID,
// ParticipantID) is its natural key. Optional fields are pointers so records
// written before they existed decode as absent.
type AttendanceRecord struct {
	SchemaVersion int       `db:"schema_version" json:"schema_version,omitempty"`
	SessionID     string    `db:"session_id" json:"session_id"`
	ParticipantID string    `db:"participant_id" json:"participant_id"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
	ParticipantSnapshot
	Date      *string `db:"record_date" json:"date,omitempty"`
	ClassID   *string `db:"class_id" json:"class_id,omitempty"`
	SubjectID *string `db:"subject_id" json:"subject_id,omitempty"`
	PhotoRef  *string `db:"photo_ref" json:"photo_ref,omitempty"`
}

// RecordKey identifies a ledger entry.
type RecordKey struct {
	SessionID     string
	ParticipantID string
}

// Key returns the natural key of the record.
func (r AttendanceRecord) Key() RecordKey {
	return RecordKey{SessionID: r.SessionID, ParticipantID: r.ParticipantID}
}

// NewAttendanceRecord builds a current-schema record accepted at now.
func NewAttendanceRecord(sessionID, participantID string, payload AttendancePayload, now time.Time) AttendanceRecord {
	date := now.Format("2006-01-02")
	return AttendanceRecord{
		SchemaVersion:       AttendanceSchemaVersion,
		SessionID:           sessionID,
		ParticipantID:       participantID,
		RecordedAt:          now,
		ParticipantSnapshot: payload.Snapshot,
		Date:                &date,
		ClassID:             optional(payload.ClassID),
		SubjectID:           optional(payload.SubjectID),
		PhotoRef:            optional(payload.PhotoRef),
	}
}

// LegacyAttendanceRecord converts one row of the pre-ledger attendance sheet.
// Those rows were keyed by roll number and only carry the acceptance day, which
// becomes RecordedAt at midnight UTC.
func LegacyAttendanceRecord(day, sessionID, rollNumber, name, enrollment string) (AttendanceRecord, error) {
	rec := AttendanceRecord{
		SchemaVersion: 1,
		SessionID:     sessionID,
		ParticipantID: rollNumber,
		ParticipantSnapshot: ParticipantSnapshot{
			RollNumber:    rollNumber,
			DisplayName:   name,
			EnrollmentRef: enrollment,
		},
	}
	if sessionID == "" || rollNumber == "" {
		return rec, fmt.Errorf("missing session id or roll number")
	}
	if day != "" {
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			return rec, fmt.Errorf("invalid date %q", day)
		}
		rec.RecordedAt = t.UTC()
		rec.Date = &day
	}
	return rec, nil
}

// SubmitResult reports what the ledger did with a submission. Record is the
// stored entry: the new one when accepted, the existing one otherwise (when
// the backend can return it).
type SubmitResult struct {
	Outcome SubmitOutcome     `json:"outcome"`
	Record  *AttendanceRecord `json:"record,omitempty"`
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
