package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
)

// RosterRepository reads classes, subjects and participants from Postgres.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs a roster repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListClasses returns every class ordered by name.
func (r *RosterRepository) ListClasses(ctx context.Context) ([]models.Class, error) {
	classes := make([]models.Class, 0)
	if err := r.db.SelectContext(ctx, &classes, `SELECT id, name FROM classes ORDER BY name ASC, id ASC`); err != nil {
		return nil, classifyPostgresError(err, "list classes")
	}
	return classes, nil
}

// GetClass returns a class by id.
func (r *RosterRepository) GetClass(ctx context.Context, classID string) (*models.Class, error) {
	var class models.Class
	if err := r.db.GetContext(ctx, &class, `SELECT id, name FROM classes WHERE id = $1`, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPostgresError(err, "get class")
	}
	return &class, nil
}

// ListSubjects returns the subjects mapped to a class.
func (r *RosterRepository) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	subjects := make([]models.Subject, 0)
	if err := r.db.SelectContext(ctx, &subjects, `SELECT id, class_id, name FROM subjects WHERE class_id = $1 ORDER BY name ASC, id ASC`, classID); err != nil {
		return nil, classifyPostgresError(err, "list subjects")
	}
	return subjects, nil
}

// GetSubject returns a subject by id.
func (r *RosterRepository) GetSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, `SELECT id, class_id, name FROM subjects WHERE id = $1`, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPostgresError(err, "get subject")
	}
	return &subject, nil
}

// ListParticipants returns a class ordered by roll number then id, which keeps
// report rows stable between calls.
func (r *RosterRepository) ListParticipants(ctx context.Context, classID string) ([]models.Participant, error) {
	participants := make([]models.Participant, 0)
	query := `SELECT id, class_id, roll_number, display_name, enrollment_ref FROM participants WHERE class_id = $1 ORDER BY roll_number ASC, id ASC`
	if err := r.db.SelectContext(ctx, &participants, query, classID); err != nil {
		return nil, classifyPostgresError(err, "list participants")
	}
	return participants, nil
}

// GetParticipant returns a participant enrolled in the class.
func (r *RosterRepository) GetParticipant(ctx context.Context, classID, participantID string) (*models.Participant, error) {
	var participant models.Participant
	query := `SELECT id, class_id, roll_number, display_name, enrollment_ref FROM participants WHERE class_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &participant, query, classID, participantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPostgresError(err, "get participant")
	}
	return &participant, nil
}
