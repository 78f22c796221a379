package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

// AttendanceLedger is the durable, uniqueness-enforcing record store.
type AttendanceLedger interface {
	Submit(ctx context.Context, sessionID, participantID string, payload models.AttendancePayload) (*models.SubmitResult, error)
	HasRecorded(ctx context.Context, sessionID, participantID string) (bool, error)
	ListBySessions(ctx context.Context, sessionIDs []string) ([]models.AttendanceRecord, error)
}

// LedgerService fronts the ledger with validation, metrics and logging. It
// enforces key uniqueness only; session validity is the registry's concern.
type LedgerService struct {
	ledger  AttendanceLedger
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(ledger AttendanceLedger, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{ledger: ledger, cache: cache, metrics: metrics, logger: logger}
}

// Submit records (sessionID, participantID) at most once. Accepted and
// AlreadyRecorded are both successful outcomes.
func (s *LedgerService) Submit(ctx context.Context, sessionID, participantID string, payload models.AttendancePayload) (*models.SubmitResult, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(participantID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_id and participant_id are required")
	}

	start := time.Now()
	result, err := s.ledger.Submit(ctx, sessionID, participantID, payload)
	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.String("session_id", sessionID),
		zap.String("participant_id", participantID),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		label := ledgerErrorLabel(err)
		s.metrics.ObserveSubmit(label, elapsed)
		switch label {
		case outcomeLabelBusy:
			s.logger.Warn("ledger busy", append(fields, zap.Error(err))...)
		default:
			s.logger.Error("ledger submit failed", append(fields, zap.String("kind", label), zap.Error(err))...)
		}
		return nil, err
	}

	s.metrics.ObserveSubmit(submitOutcomeLabel(result.Outcome), elapsed)
	switch result.Outcome {
	case models.OutcomeAccepted:
		s.cache.InvalidatePresence(ctx, payload.ClassID)
		s.logger.Info("attendance accepted", fields...)
	default:
		s.logger.Debug("attendance already recorded", fields...)
	}
	return result, nil
}

// HasRecorded is advisory: a concurrent submit may land right after it returns.
func (s *LedgerService) HasRecorded(ctx context.Context, sessionID, participantID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(participantID) == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "session_id and participant_id are required")
	}
	return s.ledger.HasRecorded(ctx, sessionID, participantID)
}

// ListBySessions returns the records of the given sessions.
func (s *LedgerService) ListBySessions(ctx context.Context, sessionIDs []string) ([]models.AttendanceRecord, error) {
	return s.ledger.ListBySessions(ctx, sessionIDs)
}

func ledgerErrorLabel(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrBusy):
		return outcomeLabelBusy
	case errors.Is(err, appErrors.ErrStorageCorrupt):
		return outcomeLabelCorrupt
	case errors.Is(err, appErrors.ErrStorageUnavailable):
		return outcomeLabelUnavailable
	default:
		return outcomeLabelError
	}
}
