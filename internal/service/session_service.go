package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

// SessionStore persists the session registry.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListActiveByCode(ctx context.Context, code string) ([]models.Session, error)
	ListActive(ctx context.Context) ([]models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) ([]string, error)
}

// SessionServiceConfig bounds session lifetimes.
type SessionServiceConfig struct {
	DefaultExpiryMinutes int
	MaxExpiryMinutes     int
}

// SessionService is the session registry: it opens, resolves, deactivates and
// sweeps sessions.
type SessionService struct {
	store     SessionStore
	roster    RosterReader
	cache     *CacheService
	metrics   *MetricsService
	clock     Clock
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SessionServiceConfig
}

// NewSessionService constructs the registry.
func NewSessionService(store SessionStore, roster RosterReader, cache *CacheService, metrics *MetricsService, clock Clock, validate *validator.Validate, logger *zap.Logger, cfg SessionServiceConfig) *SessionService {
	if clock == nil {
		clock = SystemClock{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultExpiryMinutes <= 0 {
		cfg.DefaultExpiryMinutes = 30
	}
	if cfg.MaxExpiryMinutes < cfg.DefaultExpiryMinutes {
		cfg.MaxExpiryMinutes = cfg.DefaultExpiryMinutes
	}
	return &SessionService{
		store:     store,
		roster:    roster,
		cache:     cache,
		metrics:   metrics,
		clock:     clock,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Now returns the registry's notion of the current time.
func (s *SessionService) Now() time.Time {
	return s.clock.Now()
}

// Create opens a new session. Any other active session using the same code is
// deactivated in the same store operation, so at most one live session owns a
// code at any time.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest) (*models.Session, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.ClassID = strings.TrimSpace(req.ClassID)
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	expiry := s.cfg.DefaultExpiryMinutes
	if req.ExpiryMinutes != nil {
		expiry = *req.ExpiryMinutes
	}
	if expiry <= 0 || expiry > s.cfg.MaxExpiryMinutes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("expiry_minutes must be between 1 and %d", s.cfg.MaxExpiryMinutes))
	}

	class, err := s.roster.GetClass(ctx, req.ClassID)
	if err != nil {
		return nil, rosterLookupError(err, "unknown class")
	}
	subject, err := s.roster.GetSubject(ctx, req.SubjectID)
	if err != nil {
		return nil, rosterLookupError(err, "unknown subject")
	}
	if subject.ClassID != class.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject is not taught to this class")
	}

	session := &models.Session{
		ID:            uuid.NewString(),
		Code:          req.Code,
		ClassID:       class.ID,
		ClassName:     class.Name,
		SubjectID:     subject.ID,
		SubjectName:   subject.Name,
		CreatedAt:     s.clock.Now(),
		ExpiryMinutes: expiry,
		Active:        true,
	}
	replaced, err := s.store.Create(ctx, session)
	if err != nil {
		s.logStoreError("create session", err)
		return nil, err
	}

	s.metrics.RecordSessionEvent("created", 1)
	s.metrics.RecordSessionEvent("replaced", len(replaced))
	s.cache.InvalidatePresence(ctx, session.ClassID)
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("code", session.Code),
		zap.String("class_id", session.ClassID),
		zap.String("subject_id", session.SubjectID),
		zap.Int("expiry_minutes", session.ExpiryMinutes),
		zap.Strings("replaced", replaced),
	)
	return session, nil
}

// Resolve returns the live session for code at now. Wrong, expired and
// deactivated codes are indistinguishable to the caller. When more than one
// candidate is valid the most recently created wins.
func (s *SessionService) Resolve(ctx context.Context, code string, now time.Time) (*models.Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	candidates, err := s.store.ListActiveByCode(ctx, code)
	if err != nil {
		s.logStoreError("resolve session", err)
		return nil, err
	}

	var best *models.Session
	for i := range candidates {
		c := &candidates[i]
		if !c.ValidAt(now) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) || (c.CreatedAt.Equal(best.CreatedAt) && c.ID > best.ID) {
			best = c
		}
	}
	if best == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	if len(candidates) > 1 {
		s.logger.Warn("multiple active sessions share a code", zap.String("code", code), zap.Int("count", len(candidates)))
	}
	out := *best
	return &out, nil
}

// Get returns a session by id whatever its state, for audit lookups.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, err
	}
	return session, nil
}

// Deactivate ends a session. Deactivating an inactive session is a no-op;
// changed reports whether this call flipped it.
func (s *SessionService) Deactivate(ctx context.Context, id string) (bool, error) {
	changed, err := s.store.Deactivate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		s.logStoreError("deactivate session", err)
		return false, err
	}
	if changed {
		s.metrics.RecordSessionEvent("deactivated", 1)
		s.cache.InvalidatePresence(ctx, "")
		s.logger.Info("session deactivated", zap.String("session_id", id))
	}
	return changed, nil
}

// SweepExpired deactivates every active session that is no longer valid at
// now. It writes nothing when no session expired.
func (s *SessionService) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	expired, err := s.store.DeactivateExpired(ctx, now)
	if err != nil {
		s.logStoreError("sweep expired sessions", err)
		return nil, err
	}
	if len(expired) > 0 {
		s.metrics.RecordSessionEvent("expired", len(expired))
		s.cache.InvalidatePresence(ctx, "")
		s.logger.Info("expired sessions swept", zap.Strings("session_ids", expired))
	}
	return expired, nil
}

// ListActive returns sessions still flagged active, newest first. Sessions past
// their expiry but not yet swept are included; callers derive the state.
func (s *SessionService) ListActive(ctx context.Context) ([]models.Session, error) {
	return s.store.ListActive(ctx)
}

// List returns sessions matching the filter in chronological order.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	return s.store.List(ctx, filter)
}

func (s *SessionService) logStoreError(op string, err error) {
	switch {
	case errors.Is(err, appErrors.ErrBusy):
		s.logger.Warn(op+" busy", zap.Error(err))
	case errors.Is(err, appErrors.ErrStorageCorrupt):
		s.logger.Error(op+" found corrupt storage", zap.Error(err))
	default:
		s.logger.Error(op+" failed", zap.Error(err))
	}
}

func rosterLookupError(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return appErrors.Clone(appErrors.ErrValidation, message)
	}
	return err
}
