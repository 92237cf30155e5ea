// Package sweep runs the periodic advance and reconcile sweeps that feed the executor.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/botrelay/pkg/executor"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/tasks"
	"github.com/robfig/cron/v3"
)

// Default sweep cadence and batch bounds.
const (
	DefaultAdvanceInterval   = 5 * time.Second
	DefaultReconcileInterval = 2 * time.Second
	DefaultBatchSize         = 5
	DefaultFreshnessWindow   = 120 * time.Second
)

// ErrAlreadyStarted is returned by Start on a scheduler that is already running.
var ErrAlreadyStarted = errors.New("sweep scheduler already started")

// Submitter is the part of the executor the sweeps rely on.
type Submitter interface {
	SubmitOnce(key string, task executor.Task) (*executor.Handle, bool)
	IsShutdown() bool
}

// Config sets the cadence and batch bounds of both sweeps.
type Config struct {
	AdvanceInterval   time.Duration
	ReconcileInterval time.Duration
	BatchSize         int
	FreshnessWindow   time.Duration
}

// DefaultConfig returns the default sweep cadence and batch bounds.
func DefaultConfig() Config {
	return Config{
		AdvanceInterval:   DefaultAdvanceInterval,
		ReconcileInterval: DefaultReconcileInterval,
		BatchSize:         DefaultBatchSize,
		FreshnessWindow:   DefaultFreshnessWindow,
	}
}

// Tick summarises one sweep.
type Tick struct {
	Candidates int
	Submitted  int
	Refused    int
	Stopped    bool // the executor was shutting down; remaining candidates were not offered
}

// Scheduler only queries and submits. It never runs a task itself and never waits for one.
type Scheduler struct {
	questions persistence.QuestionRepository
	executor  Submitter
	factory   *tasks.Factory
	config    Config
	now       func() time.Time
	cron      *cron.Cron
	logger    *slog.Logger
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now for the freshness window.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler builds a scheduler; a non-positive batch size falls back to DefaultBatchSize.
func NewScheduler(
	questions persistence.QuestionRepository,
	submitter Submitter,
	factory *tasks.Factory,
	config Config,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	s := &Scheduler{
		questions: questions,
		executor:  submitter,
		factory:   factory,
		config:    config,
		now:       time.Now,
		logger:    logger.With("module", "sweep_scheduler"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start registers both sweeps on their own schedules and starts the timers.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cronLog := cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		),
	)

	_, err := c.AddFunc(every(s.config.AdvanceInterval), func() {
		_, _ = s.AdvanceSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule advance sweep: %w", err)
	}

	_, err = c.AddFunc(every(s.config.ReconcileInterval), func() {
		_, _ = s.ReconcileSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile sweep: %w", err)
	}

	s.cron = c
	s.cron.Start()

	s.logger.InfoContext(ctx, "Sweep scheduler started",
		"advance_interval", s.config.AdvanceInterval,
		"reconcile_interval", s.config.ReconcileInterval,
		"batch_size", s.config.BatchSize,
		"freshness_window", s.config.FreshnessWindow)

	return nil
}

// Stop halts the timers and waits for a sweep that is mid-tick. Submitted tasks are not awaited.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping sweep scheduler")

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AdvanceSweep offers every fresh pending question to the executor as an Advance task.
func (s *Scheduler) AdvanceSweep(ctx context.Context) (Tick, error) {
	logger := s.logger.With("sweep", tasks.KindAdvance)

	if s.executor.IsShutdown() {
		logger.DebugContext(ctx, "Executor shut down, skipping sweep")

		return Tick{Stopped: true}, nil
	}

	questions, err := s.questions.FindEligibleAdvance(ctx, s.config.BatchSize, s.now(), s.config.FreshnessWindow)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to query pending questions", "error", err)

		return Tick{}, fmt.Errorf("failed to find questions to advance: %w", err)
	}

	return s.dispatch(ctx, logger, questions, func(id string) tasks.Task {
		return s.factory.Advance(id)
	}), nil
}

// ReconcileSweep offers every unfinished question to the executor as a Reconcile task.
func (s *Scheduler) ReconcileSweep(ctx context.Context) (Tick, error) {
	logger := s.logger.With("sweep", tasks.KindReconcile)

	if s.executor.IsShutdown() {
		logger.DebugContext(ctx, "Executor shut down, skipping sweep")

		return Tick{Stopped: true}, nil
	}

	questions, err := s.questions.FindEligibleReconcile(ctx, s.config.BatchSize)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to query unfinished questions", "error", err)

		return Tick{}, fmt.Errorf("failed to find questions to reconcile: %w", err)
	}

	return s.dispatch(ctx, logger, questions, func(id string) tasks.Task {
		return s.factory.Reconcile(id)
	}), nil
}

// dispatch keys every task by the question id, so an advance and a reconcile for the same
// question never run together.
func (s *Scheduler) dispatch(ctx context.Context, logger *slog.Logger, questions []*models.Question, build func(id string) tasks.Task) Tick {
	tick := Tick{Candidates: len(questions)}

	if len(questions) == 0 {
		logger.DebugContext(ctx, "No eligible questions")

		return tick
	}

	for _, question := range questions {
		_, accepted := s.executor.SubmitOnce(question.ID, s.factory.Executable(build(question.ID)))
		if accepted {
			tick.Submitted++

			continue
		}

		if s.executor.IsShutdown() {
			logger.InfoContext(ctx, "Executor shutting down, ending sweep early",
				"submitted", tick.Submitted, "remaining", len(questions)-tick.Submitted-tick.Refused)

			tick.Stopped = true

			break
		}

		tick.Refused++
	}

	logger.DebugContext(ctx, "Sweep dispatched",
		"candidates", tick.Candidates, "submitted", tick.Submitted, "refused", tick.Refused)

	return tick
}

func every(interval time.Duration) string {
	return "@every " + interval.String()
}

// cronLogger routes robfig/cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
