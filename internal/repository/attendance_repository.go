package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
)

const attendanceColumns = `schema_version, session_id, participant_id, recorded_at, roll_number, display_name, enrollment_ref, record_date, class_id, subject_id, photo_ref`

const insertAttendance = `INSERT INTO attendance_records (` + attendanceColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (session_id, participant_id) DO NOTHING`

func attendanceArgs(rec models.AttendanceRecord) []interface{} {
	return []interface{}{
		rec.SchemaVersion, rec.SessionID, rec.ParticipantID, rec.RecordedAt,
		rec.RollNumber, rec.DisplayName, rec.EnrollmentRef,
		rec.Date, rec.ClassID, rec.SubjectID, rec.PhotoRef,
	}
}

// AttendanceRepository is the Postgres ledger. The exclusive region is a
// transaction-scoped advisory lock keyed by session id, so submissions for
// different sessions never wait on each other.
type AttendanceRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// NewAttendanceRepository creates a Postgres backed ledger.
func NewAttendanceRepository(db *sqlx.DB, lockTimeout time.Duration, now func() time.Time) *AttendanceRepository {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AttendanceRepository{db: db, lockTimeout: lockTimeout, now: now}
}

// Submit performs lock, check and insert in one transaction. The primary key
// on (session_id, participant_id) backs the check up: a conflicting insert is
// reported as already recorded, never as a second row.
func (r *AttendanceRepository) Submit(ctx context.Context, sessionID, participantID string, payload models.AttendancePayload) (*models.SubmitResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classifyPostgresError(err, "submit attendance")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := setLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return nil, classifyPostgresError(err, "submit attendance")
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "attendance:"+sessionID); err != nil {
		return nil, classifyPostgresError(err, "submit attendance")
	}

	var existing models.AttendanceRecord
	err = tx.GetContext(ctx, &existing, `SELECT `+attendanceColumns+` FROM attendance_records WHERE session_id = $1 AND participant_id = $2`, sessionID, participantID)
	switch {
	case err == nil:
		return &models.SubmitResult{Outcome: models.OutcomeAlreadyRecorded, Record: &existing}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, classifyPostgresError(err, "submit attendance")
	}

	rec := models.NewAttendanceRecord(sessionID, participantID, payload, r.now())
	res, err := tx.ExecContext(ctx, insertAttendance, attendanceArgs(rec)...)
	if err != nil {
		if isUniqueViolation(err) {
			return &models.SubmitResult{Outcome: models.OutcomeAlreadyRecorded}, nil
		}
		return nil, classifyPostgresError(err, "submit attendance")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, classifyPostgresError(err, "submit attendance")
	}
	if affected == 0 {
		return &models.SubmitResult{Outcome: models.OutcomeAlreadyRecorded}, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyPostgresError(err, "commit attendance")
	}
	committed = true
	return &models.SubmitResult{Outcome: models.OutcomeAccepted, Record: &rec}, nil
}

// ImportRecords inserts the records in one transaction, skipping keys that
// already exist, and returns how many rows were added.
func (r *AttendanceRepository) ImportRecords(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classifyPostgresError(err, "import attendance")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := setLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return 0, classifyPostgresError(err, "import attendance")
	}
	imported := 0
	for _, rec := range records {
		res, err := tx.ExecContext(ctx, insertAttendance, attendanceArgs(rec)...)
		if err != nil {
			return 0, classifyPostgresError(err, "import attendance")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, classifyPostgresError(err, "import attendance")
		}
		imported += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, classifyPostgresError(err, "commit attendance import")
	}
	committed = true
	return imported, nil
}

// HasRecorded is an advisory existence check.
func (r *AttendanceRepository) HasRecorded(ctx context.Context, sessionID, participantID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM attendance_records WHERE session_id = $1 AND participant_id = $2)`, sessionID, participantID); err != nil {
		return false, classifyPostgresError(err, "check attendance")
	}
	return exists, nil
}

// ListBySessions returns records for the given sessions.
func (r *AttendanceRepository) ListBySessions(ctx context.Context, sessionIDs []string) ([]models.AttendanceRecord, error) {
	records := make([]models.AttendanceRecord, 0)
	if len(sessionIDs) == 0 {
		return records, nil
	}
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE session_id = ANY($1) ORDER BY recorded_at ASC`
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(sessionIDs)); err != nil {
		return nil, classifyPostgresError(err, "list attendance")
	}
	return records, nil
}

// Verify returns the number of stored records.
func (r *AttendanceRepository) Verify(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM attendance_records`); err != nil {
		return 0, classifyPostgresError(err, "verify attendance")
	}
	return count, nil
}

// setLockTimeout bounds every lock wait inside tx. set_config with is_local
// behaves like SET LOCAL but accepts a bind parameter.
func setLockTimeout(ctx context.Context, tx *sqlx.Tx, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", timeout.Milliseconds()))
	return err
}
