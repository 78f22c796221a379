package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
)

const sessionColumns = `id, code, class_id, class_name, subject_id, subject_name, created_at, expiry_minutes, active`

// SessionRepository is the Postgres session registry.
type SessionRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewSessionRepository creates a Postgres session registry.
func NewSessionRepository(db *sqlx.DB, lockTimeout time.Duration) *SessionRepository {
	return &SessionRepository{db: db, lockTimeout: lockTimeout}
}

// Create deactivates active sessions with the same code and inserts the new
// session in one transaction serialised per code.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classifyPostgresError(err, "create session")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := setLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return nil, classifyPostgresError(err, "create session")
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "session-code:"+session.Code); err != nil {
		return nil, classifyPostgresError(err, "create session")
	}

	deactivated := make([]string, 0)
	if err := tx.SelectContext(ctx, &deactivated, `UPDATE sessions SET active = FALSE WHERE code = $1 AND active RETURNING id`, session.Code); err != nil {
		return nil, classifyPostgresError(err, "create session")
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.Code, session.ClassID, session.ClassName, session.SubjectID, session.SubjectName,
		session.CreatedAt, session.ExpiryMinutes, session.Active,
	); err != nil {
		return nil, classifyPostgresError(err, "create session")
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyPostgresError(err, "commit session")
	}
	committed = true
	return deactivated, nil
}

// FindByID returns the session regardless of its state.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := r.db.GetContext(ctx, &session, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPostgresError(err, "find session")
	}
	return &session, nil
}

// ListActiveByCode returns sessions flagged active for the code.
func (r *SessionRepository) ListActiveByCode(ctx context.Context, code string) ([]models.Session, error) {
	sessions := make([]models.Session, 0, 1)
	if err := r.db.SelectContext(ctx, &sessions, `SELECT `+sessionColumns+` FROM sessions WHERE code = $1 AND active ORDER BY created_at DESC, id DESC`, code); err != nil {
		return nil, classifyPostgresError(err, "list sessions by code")
	}
	return sessions, nil
}

// ListActive returns every session flagged active, newest first.
func (r *SessionRepository) ListActive(ctx context.Context) ([]models.Session, error) {
	sessions := make([]models.Session, 0)
	if err := r.db.SelectContext(ctx, &sessions, `SELECT `+sessionColumns+` FROM sessions WHERE active ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, classifyPostgresError(err, "list active sessions")
	}
	return sessions, nil
}

// List returns sessions matching the filter ordered by created_at then id.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.ClassID != "" {
		add("class_id = $%d", filter.ClassID)
	}
	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	sessions := make([]models.Session, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, classifyPostgresError(err, "list sessions")
	}
	return sessions, nil
}

// Deactivate clears the active flag. changed is false when it was already clear.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return false, classifyPostgresError(err, "deactivate session")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classifyPostgresError(err, "deactivate session")
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, id); err != nil {
		return false, classifyPostgresError(err, "deactivate session")
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// DeactivateExpired flips active sessions whose window closed before now.
func (r *SessionRepository) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	ids := make([]string, 0)
	query := `UPDATE sessions SET active = FALSE
        WHERE active AND created_at + expiry_minutes * INTERVAL '1 minute' < $1
        RETURNING id`
	if err := r.db.SelectContext(ctx, &ids, query, now); err != nil {
		return nil, classifyPostgresError(err, "sweep expired sessions")
	}
	return ids, nil
}

// Verify returns the number of stored sessions.
func (r *SessionRepository) Verify(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions`); err != nil {
		return 0, classifyPostgresError(err, "verify sessions")
	}
	return count, nil
}
