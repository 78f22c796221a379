package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/pkg/storage"
)

// SessionTableFile is the session registry file inside the data directory.
const SessionTableFile = "sessions.json"

const sessionSchemaVersion = 1

type sessionDocument struct {
	SchemaVersion int              `json:"schema_version"`
	Sessions      []models.Session `json:"sessions"`
}

func decodeSessions(data []byte) ([]models.Session, error) {
	if data == nil {
		return []models.Session{}, nil
	}
	trimmed := bytes.TrimSpace(data)
	var sessions []models.Session
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &sessions); err != nil {
			return nil, corrupt(err, "decode session registry")
		}
	} else {
		var doc sessionDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, corrupt(err, "decode session registry")
		}
		sessions = doc.Sessions
	}
	for i, s := range sessions {
		if s.ID == "" {
			return nil, corrupt(fmt.Errorf("session %d has no id", i), "decode session registry")
		}
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

func encodeSessions(sessions []models.Session) ([]byte, error) {
	data, err := json.MarshalIndent(sessionDocument{SchemaVersion: sessionSchemaVersion, Sessions: sessions}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session registry: %w", err)
	}
	return data, nil
}

// SessionFileRepository keeps the session registry in a JSON table. Every
// mutation is a read-modify-write under the table lock.
type SessionFileRepository struct {
	table *storage.Table
}

// NewSessionFileRepository constructs the file-backed registry.
func NewSessionFileRepository(store *storage.LocalStorage, lockTimeout time.Duration) *SessionFileRepository {
	return &SessionFileRepository{table: store.Table(SessionTableFile, lockTimeout)}
}

// Create deactivates every active session sharing the code and appends the
// new one in the same critical section. It returns the deactivated ids.
func (r *SessionFileRepository) Create(ctx context.Context, session *models.Session) ([]string, error) {
	var deactivated []string
	err := r.table.Update(ctx, func(current []byte) ([]byte, error) {
		sessions, err := decodeSessions(current)
		if err != nil {
			return nil, err
		}
		deactivated = deactivated[:0]
		for i := range sessions {
			if sessions[i].ID == session.ID {
				return nil, fmt.Errorf("session %s already exists", session.ID)
			}
			if sessions[i].Active && sessions[i].Code == session.Code {
				sessions[i].Active = false
				deactivated = append(deactivated, sessions[i].ID)
			}
		}
		sessions = append(sessions, *session)
		return encodeSessions(sessions)
	})
	if err != nil {
		return nil, classifyStorageError(err, "create session")
	}
	return deactivated, nil
}

// FindByID returns the session regardless of its state.
func (r *SessionFileRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	sessions, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			s := sessions[i]
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// ListActiveByCode returns sessions still flagged active for the code.
// Expiry is left to the caller.
func (r *SessionFileRepository) ListActiveByCode(ctx context.Context, code string) ([]models.Session, error) {
	sessions, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Session, 0, 1)
	for _, s := range sessions {
		if s.Active && s.Code == code {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListActive returns every session flagged active, newest first.
func (r *SessionFileRepository) ListActive(ctx context.Context) ([]models.Session, error) {
	sessions, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Session, 0)
	for _, s := range sessions {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// List returns sessions matching the filter ordered by created_at then id.
func (r *SessionFileRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	sessions, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Session, 0)
	for _, s := range sessions {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	sortSessionsChronologically(out)
	return out, nil
}

// Deactivate clears the active flag. changed is false when the session was
// already inactive; in that case nothing is written.
func (r *SessionFileRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	changed := false
	err := r.table.Update(ctx, func(current []byte) ([]byte, error) {
		sessions, err := decodeSessions(current)
		if err != nil {
			return nil, err
		}
		for i := range sessions {
			if sessions[i].ID != id {
				continue
			}
			if !sessions[i].Active {
				return nil, nil
			}
			sessions[i].Active = false
			changed = true
			return encodeSessions(sessions)
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return false, classifyStorageError(err, "deactivate session")
	}
	return changed, nil
}

// DeactivateExpired flips every active session that is no longer valid at
// now and returns their ids. The table is not rewritten when none expired.
func (r *SessionFileRepository) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	var expired []string
	err := r.table.Update(ctx, func(current []byte) ([]byte, error) {
		sessions, err := decodeSessions(current)
		if err != nil {
			return nil, err
		}
		expired = expired[:0]
		for i := range sessions {
			if sessions[i].Active && !sessions[i].ValidAt(now) {
				sessions[i].Active = false
				expired = append(expired, sessions[i].ID)
			}
		}
		if len(expired) == 0 {
			return nil, nil
		}
		return encodeSessions(sessions)
	})
	if err != nil {
		return nil, classifyStorageError(err, "sweep expired sessions")
	}
	return expired, nil
}

// Verify decodes the registry and returns the number of sessions.
func (r *SessionFileRepository) Verify(ctx context.Context) (int, error) {
	sessions, err := r.load()
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

func (r *SessionFileRepository) load() ([]models.Session, error) {
	data, err := r.table.Read()
	if err != nil {
		return nil, classifyStorageError(err, "read session registry")
	}
	return decodeSessions(data)
}

func sortSessionsChronologically(sessions []models.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
