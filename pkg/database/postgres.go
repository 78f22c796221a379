package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/attendance-ledger-api/pkg/config"
)

// Schema holds the tables used by the Postgres backend. Roster tables are
// read-only for this service and are expected to be loaded by an operator.
const Schema = `
CREATE TABLE IF NOT EXISTS classes (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subjects (
	id       TEXT PRIMARY KEY,
	class_id TEXT NOT NULL REFERENCES classes(id),
	name     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS participants (
	id             TEXT PRIMARY KEY,
	class_id       TEXT NOT NULL REFERENCES classes(id),
	roll_number    TEXT NOT NULL,
	display_name   TEXT NOT NULL,
	enrollment_ref TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	code           TEXT NOT NULL,
	class_id       TEXT NOT NULL,
	class_name     TEXT NOT NULL DEFAULT '',
	subject_id     TEXT NOT NULL,
	subject_name   TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	expiry_minutes INTEGER NOT NULL CHECK (expiry_minutes > 0),
	active         BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_code ON sessions (code) WHERE active;
CREATE INDEX IF NOT EXISTS idx_sessions_class ON sessions (class_id, created_at);

CREATE TABLE IF NOT EXISTS attendance_records (
	session_id     TEXT NOT NULL REFERENCES sessions(id),
	participant_id TEXT NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL,
	schema_version INTEGER NOT NULL DEFAULT 1,
	roll_number    TEXT NOT NULL DEFAULT '',
	display_name   TEXT NOT NULL DEFAULT '',
	enrollment_ref TEXT NOT NULL DEFAULT '',
	record_date    TEXT,
	class_id       TEXT,
	subject_id     TEXT,
	photo_ref      TEXT,
	PRIMARY KEY (session_id, participant_id)
);
`

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
