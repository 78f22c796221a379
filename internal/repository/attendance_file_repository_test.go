package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
	"github.com/noah-isme/attendance-ledger-api/pkg/storage"
)

var fixedNow = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func newLedgerFixture(t *testing.T, timeout time.Duration) (*AttendanceFileRepository, *storage.LocalStorage, string) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	repo := NewAttendanceFileRepository(store, timeout, func() time.Time { return fixedNow })
	return repo, store, dir
}

func samplePayload() models.AttendancePayload {
	return models.AttendancePayload{
		Snapshot:  models.ParticipantSnapshot{RollNumber: "12", DisplayName: "Ana", EnrollmentRef: "NIS-12"},
		ClassID:   "C1",
		SubjectID: "MATH",
	}
}

func TestAttendanceFileRepositorySubmitOnce(t *testing.T) {
	repo, _, _ := newLedgerFixture(t, time.Second)
	ctx := context.Background()

	first, err := repo.Submit(ctx, "S1", "P1", samplePayload())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, first.Outcome)
	require.NotNil(t, first.Record)
	assert.Equal(t, fixedNow, first.Record.RecordedAt)
	assert.Equal(t, "Ana", first.Record.DisplayName)

	second, err := repo.Submit(ctx, "S1", "P1", samplePayload())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyRecorded, second.Outcome)

	other, err := repo.Submit(ctx, "S2", "P1", samplePayload())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, other.Outcome)

	count, err := repo.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ok, err := repo.HasRecorded(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.HasRecorded(ctx, "S1", "P2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAttendanceFileRepositoryConcurrentSubmit(t *testing.T) {
	repo, _, _ := newLedgerFixture(t, 30*time.Second)
	const callers = 300

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		already  int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := repo.Submit(context.Background(), "S1", "P1", samplePayload())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch res.Outcome {
			case models.OutcomeAccepted:
				accepted++
			case models.OutcomeAlreadyRecorded:
				already++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, callers-1, already)
	records, err := repo.ListBySessions(context.Background(), []string{"S1"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAttendanceFileRepositoryConcurrentDistinctKeys(t *testing.T) {
	repo, _, _ := newLedgerFixture(t, 30*time.Second)
	participants := []string{"P1", "P2", "P3", "P4", "P5"}

	var wg sync.WaitGroup
	for round := 0; round < 20; round++ {
		for _, p := range participants {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := repo.Submit(context.Background(), "S1", id, samplePayload())
				assert.NoError(t, err)
			}(p)
		}
	}
	wg.Wait()

	records, err := repo.ListBySessions(context.Background(), []string{"S1"})
	require.NoError(t, err)
	assert.Len(t, records, len(participants))
}

func TestAttendanceFileRepositoryReadsLegacyRecords(t *testing.T) {
	repo, _, dir := newLedgerFixture(t, time.Second)
	legacy := `[
  {"session_id":"S0","roll_number":"7","display_name":"Old Timer","enrollment_ref":"NIS-7","recorded_at":"2023-01-01T07:00:00Z"}
]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, AttendanceTableFile), []byte(legacy), 0o644))

	ok, err := repo.HasRecorded(context.Background(), "S0", "7")
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := repo.Submit(context.Background(), "S1", "P1", samplePayload())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, res.Outcome)

	raw, err := os.ReadFile(filepath.Join(dir, AttendanceTableFile))
	require.NoError(t, err)
	var doc struct {
		SchemaVersion int               `json:"schema_version"`
		Records       []json.RawMessage `json:"records"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, models.AttendanceSchemaVersion, doc.SchemaVersion)
	require.Len(t, doc.Records, 2)

	var historical map[string]any
	require.NoError(t, json.Unmarshal(doc.Records[0], &historical))
	assert.NotContains(t, historical, "date")
	assert.NotContains(t, historical, "class_id")
	assert.NotContains(t, historical, "schema_version")

	records, err := repo.ListBySessions(context.Background(), []string{"S0"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Date)
	assert.Equal(t, 1, records[0].SchemaVersion)
	assert.Equal(t, "Old Timer", records[0].DisplayName)
}

func TestAttendanceFileRepositoryRefusesCorruptStore(t *testing.T) {
	repo, _, dir := newLedgerFixture(t, time.Second)
	path := filepath.Join(dir, AttendanceTableFile)
	garbage := []byte(`{"schema_version":2,"records":[{"session_id":"S1"`)
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := repo.Submit(context.Background(), "S1", "P1", samplePayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStorageCorrupt)

	_, err = repo.HasRecorded(context.Background(), "S1", "P1")
	assert.ErrorIs(t, err, appErrors.ErrStorageCorrupt)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, after)
}

func TestAttendanceFileRepositoryEmptyFileIsCorrupt(t *testing.T) {
	repo, _, dir := newLedgerFixture(t, time.Second)
	path := filepath.Join(dir, AttendanceTableFile)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := repo.Submit(context.Background(), "S1", "P1", samplePayload())
	assert.ErrorIs(t, err, appErrors.ErrStorageCorrupt)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestAttendanceFileRepositoryBusyWhenLockHeld(t *testing.T) {
	repo, store, _ := newLedgerFixture(t, 50*time.Millisecond)
	table := store.Table(AttendanceTableFile, 0)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = table.Update(context.Background(), func([]byte) ([]byte, error) {
			close(held)
			<-release
			return nil, nil
		})
	}()
	<-held

	_, err := repo.Submit(context.Background(), "S1", "P1", samplePayload())
	close(release)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrBusy)
	assert.True(t, appErrors.Retryable(err))
}

func TestDecodeLedgerRejectsRecordWithoutKey(t *testing.T) {
	_, err := decodeLedger([]byte(`{"records":[{"display_name":"nobody"}]}`))
	assert.ErrorIs(t, err, appErrors.ErrStorageCorrupt)
}
