package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/core"
)

// UsageStatsSource reports the operating system's own per-app foreground
// totals for a half-open window [start, end)
type UsageStatsSource interface {
	QuerySystemUsage(ctx context.Context, start, end time.Time) (map[string]time.Duration, error)
}

// Reconciler merges system totals into the ledger
type Reconciler interface {
	Day(t time.Time) time.Time
	Reconcile(ctx context.Context, day time.Time, observed map[string]time.Duration) (*core.ReconcileResult, error)
}

// Flusher persists buffered state. The break controller and the milestone
// notifier are flushed on every tick.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Scheduler periodically reconciles the ledger with system usage stats
type Scheduler struct {
	source   UsageStatsSource
	ledger   Reconciler
	flushers []Flusher
	clock    core.Clock
	interval time.Duration
	logger   *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	lastDay time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(source UsageStatsSource, ledger Reconciler, clock core.Clock, interval time.Duration, logger *slog.Logger, flushers ...Flusher) *Scheduler {
	if clock == nil {
		clock = core.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		source:   source,
		ledger:   ledger,
		flushers: flushers,
		clock:    clock,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler loop (blocking)
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("Scheduler started", "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Done is closed once Start has returned
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Tick performs one cycle of the scheduler. Panics are recovered so the
// loop keeps running.
func (s *Scheduler) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scheduler tick", "panic", r)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	today := s.ledger.Day(now)

	// First tick after midnight closes out yesterday once
	if !s.lastDay.IsZero() && today.After(s.lastDay) {
		if err := s.reconcile(ctx, s.lastDay, today); err != nil {
			s.logger.Error("Failed to reconcile previous day", "day", s.lastDay.Format("2006-01-02"), "error", err)
		}
	}
	s.lastDay = today

	if err := s.reconcile(ctx, today, now); err != nil {
		s.logger.Error("Failed to reconcile usage", "error", err)
	}

	for _, f := range s.flushers {
		if err := f.Flush(ctx); err != nil {
			s.logger.Warn("Failed to flush state", "error", err)
		}
	}
}

// reconcile merges [day 00:00, end) into the ledger record of day
func (s *Scheduler) reconcile(ctx context.Context, day, end time.Time) error {
	if s.source == nil {
		return nil
	}

	observed, err := s.source.QuerySystemUsage(ctx, day, end)
	if err != nil {
		return fmt.Errorf("query system usage: %w", err)
	}

	result, err := s.ledger.Reconcile(ctx, day, observed)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	s.logger.Debug("Reconciled usage",
		"day", day.Format("2006-01-02"),
		"updated", len(result.Updated),
		"corrected", len(result.Corrected),
		"kept", len(result.Kept))
	if len(result.Corrected) > 0 {
		s.logger.Warn("Usage exceeded daily bound, corrected",
			"day", day.Format("2006-01-02"),
			"packages", result.Corrected)
	}
	return nil
}
