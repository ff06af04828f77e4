package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig holds the periods of the background jobs.
type SchedulerConfig struct {
	// Interval is how often every user's recurring bills are processed (default: 1h).
	Interval time.Duration

	// CleanupInterval is how often expired session revocations are purged (default: 6h).
	CleanupInterval time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:        time.Hour,
		CleanupInterval: 6 * time.Hour,
	}
}

type (
	// BillRunner processes the recurring bills of every user.
	BillRunner interface {
		ProcessAll(ctx context.Context, now time.Time) (ProcessResult, error)
	}

	// SessionPurger forgets revoked sessions that have expired anyway.
	SessionPurger interface {
		PurgeExpired(ctx context.Context) (int, error)
	}
)

// Scheduler runs the recurring bill processor on a timer, so bills advance
// even for users who do not open the dashboard.
type Scheduler struct {
	runner BillRunner
	purger SessionPurger
	config SchedulerConfig
	now    func() time.Time

	mu       sync.Mutex
	running  bool
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a scheduler. purger may be nil.
func NewScheduler(runner BillRunner, purger SessionPurger, config SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &Scheduler{
		runner: runner,
		purger: purger,
		config: config,
		now:    time.Now,
	}
}

// Start begins the loop with an immediate run. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	if s.runner == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler has no bill runner")
	}
	s.running = true
	s.stopping = false
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring scheduler started",
		"interval", s.config.Interval,
		"cleanup_interval", s.config.CleanupInterval)
	return nil
}

// Stop signals the loop and waits for the current run to finish. It is safe
// to call from several goroutines; each waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		s.stopping = true
		close(s.stopCh)
	}
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Recurring scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-cleanupTicker.C:
			s.purge(ctx)
		}
	}
}

// RunOnce processes every user's bills at the current time.
func (s *Scheduler) RunOnce(ctx context.Context) ProcessResult {
	now := s.now()
	result, err := s.runner.ProcessAll(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Periodic processing failed", "error", err)
		return result
	}
	slog.InfoContext(ctx, "Periodic processing complete",
		"generated", result.Generated,
		"failed", len(result.Failed),
		"next_check", now.Add(s.config.Interval).Format("15:04:05"))
	return result
}

func (s *Scheduler) purge(ctx context.Context) {
	if s.purger == nil {
		return
	}
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to purge expired sessions", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired sessions", "count", n)
	}
}
