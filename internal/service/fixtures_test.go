package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/internal/repository"
	"github.com/noah-isme/attendance-ledger-api/pkg/storage"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type memoryRoster struct {
	classes      []models.Class
	subjects     []models.Subject
	participants []models.Participant
}

func newMemoryRoster() *memoryRoster {
	return &memoryRoster{
		classes: []models.Class{{ID: "C1", Name: "Grade 10A"}, {ID: "C2", Name: "Grade 10B"}},
		subjects: []models.Subject{
			{ID: "MATH", ClassID: "C1", Name: "Mathematics"},
			{ID: "BIO", ClassID: "C2", Name: "Biology"},
		},
		participants: []models.Participant{
			{ID: "P1", ClassID: "C1", RollNumber: "1", DisplayName: "Ana", EnrollmentRef: "NIS-1"},
			{ID: "P2", ClassID: "C1", RollNumber: "2", DisplayName: "Budi", EnrollmentRef: "NIS-2"},
			{ID: "P3", ClassID: "C1", RollNumber: "3", DisplayName: "Citra", EnrollmentRef: "NIS-3"},
			{ID: "Q1", ClassID: "C2", RollNumber: "1", DisplayName: "Dewi", EnrollmentRef: "NIS-9"},
		},
	}
}

func (m *memoryRoster) ListClasses(ctx context.Context) ([]models.Class, error) {
	return m.classes, nil
}

func (m *memoryRoster) GetClass(ctx context.Context, classID string) (*models.Class, error) {
	for _, c := range m.classes {
		if c.ID == classID {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRoster) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	var out []models.Subject
	for _, s := range m.subjects {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryRoster) GetSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	for _, s := range m.subjects {
		if s.ID == subjectID {
			s := s
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRoster) ListParticipants(ctx context.Context, classID string) ([]models.Participant, error) {
	out := []models.Participant{}
	for _, p := range m.participants {
		if p.ClassID == classID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRoster) GetParticipant(ctx context.Context, classID, participantID string) (*models.Participant, error) {
	for _, p := range m.participants {
		if p.ClassID == classID && p.ID == participantID {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fixture wires the services over the file store in a temp directory.
type fixture struct {
	clock      *fixedClock
	roster     *memoryRoster
	store      *repository.SessionFileRepository
	attendance *repository.AttendanceFileRepository
	sessions   *SessionService
	ledger     *LedgerService
	checkin    *CheckInService
	reports    *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	clock := newFixedClock(t0)
	roster := newMemoryRoster()
	store := repository.NewSessionFileRepository(local, 10*time.Second)
	attendance := repository.NewAttendanceFileRepository(local, 10*time.Second, clock.Now)

	sessions := NewSessionService(store, roster, nil, nil, clock, nil, nil, SessionServiceConfig{DefaultExpiryMinutes: 30, MaxExpiryMinutes: 180})
	ledger := NewLedgerService(attendance, nil, nil, nil)
	return &fixture{
		clock:      clock,
		roster:     roster,
		store:      store,
		attendance: attendance,
		sessions:   sessions,
		ledger:     ledger,
		checkin:    NewCheckInService(sessions, roster, ledger, nil, nil, nil, RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond}),
		reports:    NewReportService(store, attendance, roster, nil, 0, clock, nil, nil),
	}
}

func intPtr(v int) *int {
	return &v
}
