package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/pkg/storage"
)

// AttendanceTableFile is the ledger file inside the data directory.
const AttendanceTableFile = "attendance.json"

// ledgerDocument is the on-disk shape. Records are kept as raw JSON so a
// rewrite reproduces historical entries byte for byte instead of
// re-encoding them with fields they never had.
type ledgerDocument struct {
	SchemaVersion int               `json:"schema_version"`
	Records       []json.RawMessage `json:"records"`
}

type ledgerSnapshot struct {
	raw     []json.RawMessage
	records []models.AttendanceRecord
	index   map[models.RecordKey]int
}

func (s *ledgerSnapshot) lookup(key models.RecordKey) (models.AttendanceRecord, bool) {
	i, ok := s.index[key]
	if !ok {
		return models.AttendanceRecord{}, false
	}
	return s.records[i], true
}

func (s *ledgerSnapshot) append(raw json.RawMessage, rec models.AttendanceRecord) {
	s.raw = append(s.raw, raw)
	s.records = append(s.records, rec)
	if _, exists := s.index[rec.Key()]; !exists {
		s.index[rec.Key()] = len(s.records) - 1
	}
}

// decodeLedger parses the committed bytes. nil means the ledger was never
// written and yields an empty snapshot. Anything else that fails to parse is
// corruption. A bare JSON array is accepted as the pre-versioned layout.
func decodeLedger(data []byte) (*ledgerSnapshot, error) {
	snap := &ledgerSnapshot{index: map[models.RecordKey]int{}}
	if data == nil {
		return snap, nil
	}

	var raws []json.RawMessage
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, corrupt(err, "decode attendance ledger")
		}
	} else {
		var doc ledgerDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, corrupt(err, "decode attendance ledger")
		}
		raws = doc.Records
	}

	for i, raw := range raws {
		rec, err := decodeAttendanceRecord(raw)
		if err != nil {
			return nil, corrupt(fmt.Errorf("record %d: %w", i, err), "decode attendance ledger")
		}
		snap.append(raw, rec)
	}
	return snap, nil
}

// decodeAttendanceRecord tolerates missing fields. Version 1 entries were keyed
// by roll number and have no participant_id.
func decodeAttendanceRecord(raw json.RawMessage) (models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = 1
	}
	if rec.ParticipantID == "" {
		rec.ParticipantID = rec.RollNumber
	}
	if rec.SessionID == "" || rec.ParticipantID == "" {
		return rec, fmt.Errorf("missing session or participant key")
	}
	return rec, nil
}

func encodeLedger(raws []json.RawMessage) ([]byte, error) {
	return json.MarshalIndent(ledgerDocument{SchemaVersion: models.AttendanceSchemaVersion, Records: raws}, "", "  ")
}

// AttendanceFileRepository is the append-only ledger persisted as one JSON
// document that is rewritten whole under the table lock.
type AttendanceFileRepository struct {
	table *storage.Table
	now   func() time.Time
}

// NewAttendanceFileRepository constructs the file-backed ledger.
func NewAttendanceFileRepository(store *storage.LocalStorage, lockTimeout time.Duration, now func() time.Time) *AttendanceFileRepository {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AttendanceFileRepository{table: store.Table(AttendanceTableFile, lockTimeout), now: now}
}

// Submit records the pair once. Lock, re-read, check, append and durable
// rewrite happen inside a single Table.Update; nothing is written when the
// key exists or the committed document cannot be decoded.
func (r *AttendanceFileRepository) Submit(ctx context.Context, sessionID, participantID string, payload models.AttendancePayload) (*models.SubmitResult, error) {
	var result *models.SubmitResult
	err := r.table.Update(ctx, func(current []byte) ([]byte, error) {
		snap, err := decodeLedger(current)
		if err != nil {
			return nil, err
		}
		key := models.RecordKey{SessionID: sessionID, ParticipantID: participantID}
		if existing, ok := snap.lookup(key); ok {
			result = &models.SubmitResult{Outcome: models.OutcomeAlreadyRecorded, Record: &existing}
			return nil, nil
		}

		rec := models.NewAttendanceRecord(sessionID, participantID, payload, r.now())
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode attendance record: %w", err)
		}
		snap.append(raw, rec)
		next, err := encodeLedger(snap.raw)
		if err != nil {
			return nil, fmt.Errorf("encode attendance ledger: %w", err)
		}
		result = &models.SubmitResult{Outcome: models.OutcomeAccepted, Record: &rec}
		return next, nil
	})
	if err != nil {
		return nil, classifyStorageError(err, "submit attendance")
	}
	return result, nil
}

// ImportRecords appends the records whose key is not in the ledger yet, in one
// locked rewrite, and returns how many were added. Records are stored as
// given; nothing is written when every key already exists.
func (r *AttendanceFileRepository) ImportRecords(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	imported := 0
	err := r.table.Update(ctx, func(current []byte) ([]byte, error) {
		imported = 0
		snap, err := decodeLedger(current)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if _, ok := snap.lookup(rec.Key()); ok {
				continue
			}
			raw, err := json.Marshal(rec)
			if err != nil {
				return nil, fmt.Errorf("encode attendance record: %w", err)
			}
			snap.append(raw, rec)
			imported++
		}
		if imported == 0 {
			return nil, nil
		}
		next, err := encodeLedger(snap.raw)
		if err != nil {
			return nil, fmt.Errorf("encode attendance ledger: %w", err)
		}
		return next, nil
	})
	if err != nil {
		return 0, classifyStorageError(err, "import attendance")
	}
	return imported, nil
}

// HasRecorded reads the last committed ledger without locking.
func (r *AttendanceFileRepository) HasRecorded(ctx context.Context, sessionID, participantID string) (bool, error) {
	snap, err := r.load()
	if err != nil {
		return false, err
	}
	_, ok := snap.lookup(models.RecordKey{SessionID: sessionID, ParticipantID: participantID})
	return ok, nil
}

// ListBySessions returns every record belonging to one of the sessions.
func (r *AttendanceFileRepository) ListBySessions(ctx context.Context, sessionIDs []string) ([]models.AttendanceRecord, error) {
	snap, err := r.load()
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = struct{}{}
	}
	out := make([]models.AttendanceRecord, 0)
	for _, rec := range snap.records {
		if _, ok := wanted[rec.SessionID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Verify decodes the committed ledger and returns the record count.
func (r *AttendanceFileRepository) Verify(ctx context.Context) (int, error) {
	snap, err := r.load()
	if err != nil {
		return 0, err
	}
	return len(snap.records), nil
}

func (r *AttendanceFileRepository) load() (*ledgerSnapshot, error) {
	data, err := r.table.Read()
	if err != nil {
		return nil, classifyStorageError(err, "read attendance ledger")
	}
	return decodeLedger(data)
}
