package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

func TestCheckInAcceptedThenAlreadyRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Create(ctx, dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "ABC"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(5 * time.Minute))
	resp, err := f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: " ABC ", ParticipantID: "P1", PhotoRef: "photos/p1.jpg"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, resp.Outcome)
	assert.Equal(t, session.ID, resp.Session.ID)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "Ana", resp.Record.DisplayName)
	assert.Equal(t, "NIS-1", resp.Record.EnrollmentRef)
	require.NotNil(t, resp.Record.PhotoRef)
	assert.Equal(t, "photos/p1.jpg", *resp.Record.PhotoRef)
	assert.Equal(t, t0.Add(5*time.Minute), resp.Record.RecordedAt)

	resp, err = f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "ABC", ParticipantID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyRecorded, resp.Outcome)

	status, err := f.ledger.HasRecorded(ctx, session.ID, "P1")
	require.NoError(t, err)
	assert.True(t, status)
}

func TestCheckInRejectsUnknownCodeAndStranger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sessions.Create(ctx, dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "ABC", ExpiryMinutes: intPtr(10)})
	require.NoError(t, err)

	_, err = f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "XYZ", ParticipantID: "P1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "ABC", ParticipantID: "Q1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "ABC", ParticipantID: "  "})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.clock.Set(t0.Add(11 * time.Minute))
	_, err = f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "ABC", ParticipantID: "P1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCheckInResolveReturnsRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Create(ctx, dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "ABC"})
	require.NoError(t, err)

	resp, err := f.checkin.Resolve(ctx, dto.ResolveRequest{Code: "ABC"})
	require.NoError(t, err)
	assert.Equal(t, session.ID, resp.Session.ID)
	require.Len(t, resp.Participants, 3)
	assert.Equal(t, "P1", resp.Participants[0].ID)

	_, err = f.checkin.Resolve(ctx, dto.ResolveRequest{Code: ""})
	assert.Error(t, err)
}

// Walks the two-participant, expiring-session scenario end to end.
func TestCheckInSessionLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1, err := f.sessions.Create(ctx, dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "S1", ExpiryMinutes: intPtr(30)})
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Minute))
	resp, err := f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "S1", ParticipantID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, resp.Outcome)

	f.clock.Set(t0.Add(2 * time.Minute))
	resp, err = f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "S1", ParticipantID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyRecorded, resp.Outcome)

	f.clock.Set(t0.Add(31 * time.Minute))
	_, err = f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "S1", ParticipantID: "P2"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	// The ledger itself does not know about expiry.
	result, err := f.ledger.Submit(ctx, s1.ID, "P2", models.AttendancePayload{ClassID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, result.Outcome)

	records, err := f.ledger.ListBySessions(ctx, []string{s1.ID})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCheckInConcurrentSameParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sessions.Create(ctx, dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "ABC"})
	require.NoError(t, err)

	const callers = 300
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		already  int
		failures []error
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			resp, err := f.checkin.CheckIn(ctx, dto.CheckInRequest{Code: "ABC", ParticipantID: "P2"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			if resp.Outcome == models.OutcomeAccepted {
				accepted++
			} else {
				already++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, callers-1, already)
}

type scriptedLedger struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (l *scriptedLedger) Submit(ctx context.Context, sessionID, participantID string, payload models.AttendancePayload) (*models.SubmitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, err
	}
	record := models.NewAttendanceRecord(sessionID, participantID, payload, t0)
	return &models.SubmitResult{Outcome: models.OutcomeAccepted, Record: &record}, nil
}

func (l *scriptedLedger) HasRecorded(ctx context.Context, sessionID, participantID string) (bool, error) {
	return false, nil
}

func (l *scriptedLedger) ListBySessions(ctx context.Context, sessionIDs []string) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func newScriptedCheckIn(t *testing.T, ledger *scriptedLedger, maxRetries int) *CheckInService {
	t.Helper()
	f := newFixture(t)
	_, err := f.sessions.Create(context.Background(), dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "ABC"})
	require.NoError(t, err)
	return NewCheckInService(f.sessions, f.roster, NewLedgerService(ledger, nil, nil, zap.NewNop()), NewMetricsService(), nil, zap.NewNop(),
		RetryConfig{MaxRetries: maxRetries, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
}

func TestCheckInRetriesBusyLedger(t *testing.T) {
	ledger := &scriptedLedger{errs: []error{appErrors.ErrBusy, appErrors.ErrBusy}}
	svc := newScriptedCheckIn(t, ledger, 3)

	resp, err := svc.CheckIn(context.Background(), dto.CheckInRequest{Code: "ABC", ParticipantID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAccepted, resp.Outcome)
	assert.Equal(t, 3, ledger.calls)
}

func TestCheckInGivesUpWhenLedgerStaysBusy(t *testing.T) {
	ledger := &scriptedLedger{errs: []error{appErrors.ErrBusy, appErrors.ErrBusy, appErrors.ErrBusy, appErrors.ErrBusy}}
	svc := newScriptedCheckIn(t, ledger, 2)

	_, err := svc.CheckIn(context.Background(), dto.CheckInRequest{Code: "ABC", ParticipantID: "P1"})
	assert.ErrorIs(t, err, appErrors.ErrBusy)
	assert.Equal(t, 3, ledger.calls)
}

func TestCheckInDoesNotRetryStorageFaults(t *testing.T) {
	for name, fault := range map[string]error{
		"corrupt":     appErrors.ErrStorageCorrupt,
		"unavailable": appErrors.ErrStorageUnavailable,
	} {
		t.Run(name, func(t *testing.T) {
			ledger := &scriptedLedger{errs: []error{fault}}
			svc := newScriptedCheckIn(t, ledger, 3)

			_, err := svc.CheckIn(context.Background(), dto.CheckInRequest{Code: "ABC", ParticipantID: "P1"})
			assert.ErrorIs(t, err, fault)
			assert.Equal(t, 1, ledger.calls)
		})
	}
}
