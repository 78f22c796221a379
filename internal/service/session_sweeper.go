package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
	"github.com/noah-isme/attendance-ledger-api/pkg/jobs"
)

const sweepJobType = "session.sweep"

// SessionSweeper runs the expiry sweep on a single-worker queue, both on a
// timer and on demand. Busy sweeps are retried by the queue.
type SessionSweeper struct {
	sessions *SessionService
	queue    *jobs.Queue
	interval time.Duration
	logger   *zap.Logger
}

// NewSessionSweeper wires the sweeper to its queue.
func NewSessionSweeper(sessions *SessionService, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	sw := &SessionSweeper{sessions: sessions, interval: interval, logger: logger}
	sw.queue = jobs.NewQueue("session-sweeper", sw.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: 3,
		RetryDelay: time.Second,
		Retryable:  appErrors.Retryable,
		Logger:     logger,
	})
	return sw
}

// Start launches the worker and, for a positive interval, the periodic schedule.
func (s *SessionSweeper) Start(ctx context.Context) error {
	s.queue.Start(ctx)
	if s.interval <= 0 {
		return nil
	}
	return s.queue.Schedule(sweepJobType, s.interval)
}

// Trigger requests an immediate sweep. A sweep already waiting makes this a no-op.
func (s *SessionSweeper) Trigger() {
	if err := s.queue.TryEnqueue(jobs.Job{ID: "manual", Type: sweepJobType}); err != nil {
		s.logger.Debug("sweep trigger skipped", zap.Error(err))
	}
}

// Stop halts the schedule and waits for an in-flight sweep.
func (s *SessionSweeper) Stop() {
	s.queue.Stop()
}

func (s *SessionSweeper) handle(ctx context.Context, job jobs.Job) error {
	_, err := s.sessions.SweepExpired(ctx, s.sessions.Now())
	return err
}
