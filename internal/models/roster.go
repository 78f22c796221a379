package models

// Class is a roster class.
type Class struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Subject is taught to exactly one class.
type Subject struct {
	ID      string `db:"id" json:"id"`
	ClassID string `db:"class_id" json:"class_id"`
	Name    string `db:"name" json:"name"`
}

// Participant is an individual eligible to be recorded present.
type Participant struct {
	ID            string `db:"id" json:"id"`
	ClassID       string `db:"class_id" json:"class_id"`
	RollNumber    string `db:"roll_number" json:"roll_number"`
	DisplayName   string `db:"display_name" json:"display_name"`
	EnrollmentRef string `db:"enrollment_ref" json:"enrollment_ref"`
}

// Snapshot copies the display fields stored alongside attendance records.
func (p Participant) Snapshot() ParticipantSnapshot {
	return ParticipantSnapshot{
		RollNumber:    p.RollNumber,
		DisplayName:   p.DisplayName,
		EnrollmentRef: p.EnrollmentRef,
	}
}
