package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/botrelay/pkg/config"
	"github.com/dukex/botrelay/pkg/eventbus"
	"github.com/dukex/botrelay/pkg/executor"
	"github.com/dukex/botrelay/pkg/ingest"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/reconcile"
	"github.com/dukex/botrelay/pkg/sweep"
	"github.com/dukex/botrelay/pkg/tasks"
	"go.opentelemetry.io/otel/trace"
)

const stopTimeout = 30 * time.Second

type WorkerManager struct {
	id          string
	config      config.Config
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	factory     *tasks.Factory

	executor  *executor.Executor[string]
	scheduler *sweep.Scheduler
}

func NewWorkerManager(
	id string,
	cfg config.Config,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	engine tasks.Engine,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*WorkerManager, error) {
	ingestor, err := ingest.NewIngestor(persistence.Events(), persistence.Runs(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream ingestor: %w", err)
	}

	reconciler := reconcile.NewEngine(persistence, cfg.EngineConfig(), logger, reconcile.WithPublisher(eventBus))

	return &WorkerManager{
		id:          id,
		config:      cfg,
		logger:      logger.With("module", "botrelay-worker", "worker_id", id),
		persistence: persistence,
		eventBus:    eventBus,
		factory:     tasks.NewFactory(persistence, engine, ingestor, reconciler, tracer, logger, tasks.WithTimeout(cfg.Timeout)),
	}, nil
}

// Start brings up the executor and then the sweeps that feed it.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "workers", w.config.Workers)

	w.executor = executor.New[string](ctx, w.logger, w.config.Workers)
	w.scheduler = sweep.NewScheduler(w.persistence.Questions(), w.executor, w.factory, w.config.SchedulerConfig(), w.logger)

	err := w.scheduler.Start(ctx)
	if err != nil {
		w.executor.Shutdown(false)

		return fmt.Errorf("failed to start sweeps: %w", err)
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// Stop halts the sweeps first so nothing new is submitted, then drains the executor until ctx is done.
func (w *WorkerManager) Stop(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Shutting down worker...")

	var stopErr error

	if w.scheduler != nil {
		err := w.scheduler.Stop(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "Sweeps did not stop cleanly", "error", err)

			stopErr = err
		}
	}

	if w.executor != nil {
		w.executor.Shutdown(false)

		err := w.executor.Wait(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "Tasks still running at shutdown deadline", "error", err)

			stopErr = errors.Join(stopErr, err)
		}
	}

	w.logger.InfoContext(ctx, "Worker stopped")

	return stopErr
}

// Run starts the worker and blocks until SIGINT, SIGTERM or ctx cancellation.
func (w *WorkerManager) Run(ctx context.Context) error {
	err := w.Start(ctx)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		w.logger.InfoContext(ctx, "Received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	return w.Stop(stopCtx)
}
