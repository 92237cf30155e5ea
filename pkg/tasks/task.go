// Package tasks defines the units of work the sweeps submit for a single question.
package tasks

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dukex/botrelay/pkg/executor"
	"github.com/dukex/botrelay/pkg/ingest"
	"github.com/dukex/botrelay/pkg/otelhelper"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/reconcile"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Kind string

const (
	KindAdvance   Kind = "advance"
	KindReconcile Kind = "reconcile"
)

const spanName = "botrelay.task.run"

// Result reports how a task ended. Err is informational: tasks contain their own failures.
type Result struct {
	Kind       Kind
	QuestionID string
	Outcome    string
	Err        error
}

// Task is one unit of work bound to a question.
type Task interface {
	Kind() Kind
	QuestionID() string
	Run(ctx context.Context) Result
}

// Engine sends a query to the workflow engine and returns its event stream.
type Engine interface {
	SendQuery(ctx context.Context, query, user string) (io.ReadCloser, error)
}

// StreamIngestor persists an engine event stream for a run.
type StreamIngestor interface {
	Ingest(ctx context.Context, run *ingest.RunContext, stream io.Reader) (ingest.Stats, error)
}

// Reconciler evaluates the state machine for one question.
type Reconciler interface {
	Reconcile(ctx context.Context, questionID string) (reconcile.Outcome, error)
}

// Factory builds tasks sharing the same collaborators.
type Factory struct {
	store      persistence.Persistence
	engine     Engine
	ingestor   StreamIngestor
	reconciler Reconciler
	tracer     trace.Tracer
	timeout    time.Duration
	logger     *slog.Logger
}

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// WithTimeout sets the question age after which an Advance task abandons the engine stream.
// It should match the reconciliation timeout so the key is free once the question can time out.
func WithTimeout(timeout time.Duration) FactoryOption {
	return func(f *Factory) {
		f.timeout = timeout
	}
}

func NewFactory(
	store persistence.Persistence,
	engine Engine,
	ingestor StreamIngestor,
	reconciler Reconciler,
	tracer trace.Tracer,
	logger *slog.Logger,
	opts ...FactoryOption,
) *Factory {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	factory := &Factory{
		store:      store,
		engine:     engine,
		ingestor:   ingestor,
		reconciler: reconciler,
		tracer:     tracer,
		timeout:    reconcile.DefaultTimeout,
		logger:     logger.With("module", "tasks"),
	}

	for _, opt := range opts {
		opt(factory)
	}

	return factory
}

func (f *Factory) Advance(questionID string) *Advance {
	return &Advance{
		questionID: questionID,
		store:      f.store,
		engine:     f.engine,
		ingestor:   f.ingestor,
		timeout:    f.timeout,
		now:        time.Now,
		logger:     f.logger.With("task", KindAdvance, "question_id", questionID),
	}
}

func (f *Factory) Reconcile(questionID string) *Reconcile {
	return &Reconcile{
		questionID: questionID,
		reconciler: f.reconciler,
		logger:     f.logger.With("task", KindReconcile, "question_id", questionID),
	}
}

// Executable adapts a task to the executor, wrapping each run in a span.
func (f *Factory) Executable(task Task) executor.Task {
	return func(ctx context.Context) error {
		ctx, span := otelhelper.StartSpan(ctx, f.tracer, spanName,
			attribute.String(otelhelper.QuestionIDKey, task.QuestionID()),
			attribute.String(otelhelper.TaskKindKey, string(task.Kind())),
		)
		defer span.End()

		result := task.Run(ctx)

		span.SetAttributes(attribute.String(otelhelper.OutcomeKey, result.Outcome))

		if result.Err != nil {
			otelhelper.SetError(span, result.Err)
		}

		return result.Err
	}
}
