// Package recovery dispatches again the tasks whose dispatch was lost.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep every minute.
const DefaultSchedule = "@every 1m"

// Redispatcher dispatches tasks left in PROCESSING for longer than olderThan.
type Redispatcher interface {
	Redispatch(ctx context.Context, olderThan time.Duration) (int, error)
}

type Sweeper struct {
	schedule   string
	staleAfter time.Duration
	target     Redispatcher
	logger     *slog.Logger
	cron       *cron.Cron
	cancel     context.CancelFunc
}

func NewSweeper(schedule string, staleAfter time.Duration, target Redispatcher, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if staleAfter <= 0 {
		return nil, errors.New("stale-after must be positive")
	}

	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	logger = logger.With("module", "recovery_sweeper", "schedule", schedule, "stale_after", staleAfter)

	return &Sweeper{
		schedule:   schedule,
		staleAfter: staleAfter,
		target:     target,
		logger:     logger,
	}, nil
}

// Start runs Sweep on the schedule until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	cronLogger := slogAdapter{logger: s.logger}
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	id, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.logger.InfoContext(ctx, "Starting sweeper", "entry_id", id)
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Sweep runs one pass and returns how many tasks were dispatched.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	count, err := s.target.Redispatch(ctx, s.staleAfter)
	if err != nil {
		s.logger.ErrorContext(ctx, "Sweep failed", "error", err, "dispatched", count)

		return count, err
	}

	s.logger.DebugContext(ctx, "Sweep finished", "dispatched", count)

	return count, nil
}

// Stop stops the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()

	if s.cancel != nil {
		s.cancel()
	}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
