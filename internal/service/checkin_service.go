package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

// RetryConfig bounds retries of busy ledger submits.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// CheckInService is the participant-facing flow: resolve a code, verify
// enrollment and submit once to the ledger.
type CheckInService struct {
	sessions  *SessionService
	roster    RosterReader
	ledger    *LedgerService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	retry     RetryConfig
}

// NewCheckInService constructs the check-in flow.
func NewCheckInService(sessions *SessionService, roster RosterReader, ledger *LedgerService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, retry RetryConfig) *CheckInService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = 100 * time.Millisecond
	}
	if retry.MaxBackoff < retry.InitialBackoff {
		retry.MaxBackoff = 10 * retry.InitialBackoff
	}
	return &CheckInService{
		sessions:  sessions,
		roster:    roster,
		ledger:    ledger,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		retry:     retry,
	}
}

// Resolve returns the live session for a code and its class roster.
func (s *CheckInService) Resolve(ctx context.Context, req dto.ResolveRequest) (*dto.ResolveResponse, error) {
	req.Code = strings.TrimSpace(req.Code)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	now := s.sessions.Now()
	session, err := s.sessions.Resolve(ctx, req.Code, now)
	if err != nil {
		return nil, err
	}
	participants, err := s.roster.ListParticipants(ctx, session.ClassID)
	if err != nil {
		return nil, err
	}
	return &dto.ResolveResponse{Session: dto.NewSessionView(*session, now), Participants: participants}, nil
}

// CheckIn resolves the code, snapshots the participant and submits to the
// ledger, retrying a bounded number of times while the ledger is busy.
func (s *CheckInService) CheckIn(ctx context.Context, req dto.CheckInRequest) (*dto.CheckInResponse, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	req.PhotoRef = strings.TrimSpace(req.PhotoRef)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}

	now := s.sessions.Now()
	session, err := s.sessions.Resolve(ctx, req.Code, now)
	if err != nil {
		return nil, err
	}
	participant, err := s.roster.GetParticipant(ctx, session.ClassID, req.ParticipantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "participant is not enrolled in this class")
		}
		return nil, err
	}

	payload := models.AttendancePayload{
		Snapshot:  participant.Snapshot(),
		ClassID:   session.ClassID,
		SubjectID: session.SubjectID,
		PhotoRef:  req.PhotoRef,
	}
	result, err := s.submitWithRetry(ctx, session.ID, participant.ID, payload)
	if err != nil {
		return nil, err
	}
	return &dto.CheckInResponse{
		Outcome: result.Outcome,
		Session: dto.NewSessionView(*session, now),
		Record:  result.Record,
	}, nil
}

func (s *CheckInService) submitWithRetry(ctx context.Context, sessionID, participantID string, payload models.AttendancePayload) (*models.SubmitResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retry.InitialBackoff
	policy.MaxInterval = s.retry.MaxBackoff

	attempt := 0
	operation := func() (*models.SubmitResult, error) {
		attempt++
		if attempt > 1 {
			s.metrics.RecordBusyRetry()
		}
		result, err := s.ledger.Submit(ctx, sessionID, participantID, payload)
		if err == nil {
			return result, nil
		}
		if appErrors.Retryable(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.retry.MaxRetries+1)),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, appErrors.WrapAs(appErrors.ErrBusy, err, "check-in abandoned while waiting for the ledger")
		}
		if attempt > 1 && appErrors.Retryable(err) {
			s.logger.Warn("ledger still busy after retries", zap.String("session_id", sessionID), zap.Int("attempts", attempt))
		}
		return nil, err
	}
	return result, nil
}
