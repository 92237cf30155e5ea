// Package reconcile drives questions through pending, running and their terminal statuses
// by reading the workflow events recorded for them.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/botrelay/pkg/eventbus"
	"github.com/dukex/botrelay/pkg/events"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
)

// DefaultTimeout is the question age after which an unfinished question is failed.
const DefaultTimeout = 120 * time.Second

// Outcome names what one evaluation did to a question.
type Outcome string

const (
	OutcomeNoop            Outcome = "noop"
	OutcomeAlreadyFinished Outcome = "already_finished"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeFailed          Outcome = "failed"
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeRefreshed       Outcome = "refreshed"
)

// Messages are the user-visible texts written by the engine.
type Messages struct {
	Timeout     string `yaml:"timeout"     validate:"required"`
	Failure     string `yaml:"failure"     validate:"required"`
	Placeholder string `yaml:"placeholder" validate:"required"`
}

// DefaultMessages returns the built-in timeout, failure and placeholder texts.
func DefaultMessages() Messages {
	return Messages{
		Timeout:     "处理超时",
		Failure:     "处理失败",
		Placeholder: "正在处理中...",
	}
}

// Config holds the timeout and the texts written on terminal transitions.
type Config struct {
	Timeout  time.Duration
	Messages Messages
}

// DefaultConfig returns a Config with DefaultTimeout and DefaultMessages.
func DefaultConfig() Config {
	return Config{
		Timeout:  DefaultTimeout,
		Messages: DefaultMessages(),
	}
}

// Engine evaluates the question state machine against the store.
type Engine struct {
	questions persistence.QuestionRepository
	runs      persistence.RunRepository
	events    persistence.EventRepository
	publisher eventbus.EventPublisher
	config    Config
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPublisher announces terminal transitions on the event bus.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// NewEngine builds an engine over store; a non-positive timeout falls back to DefaultTimeout.
func NewEngine(store persistence.Persistence, config Config, logger *slog.Logger, opts ...Option) *Engine {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	engine := &Engine{
		questions: store.Questions(),
		runs:      store.Runs(),
		events:    store.Events(),
		config:    config,
		now:       time.Now,
		logger:    logger.With("module", "reconciliation_engine"),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Reconcile loads the question and evaluates it once.
func (e *Engine) Reconcile(ctx context.Context, questionID string) (Outcome, error) {
	question, err := e.questions.FindByID(ctx, questionID)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("failed to load question: %w", err)
	}

	return e.Evaluate(ctx, question)
}

// Evaluate applies the first matching transition. Every write is a single update guarded by
// finish = false; losing that guard to a concurrent evaluator is reported as OutcomeAlreadyFinished.
func (e *Engine) Evaluate(ctx context.Context, question *models.Question) (Outcome, error) {
	logger := e.logger.With("question_id", question.ID, "status", question.Status)

	if question.Finish {
		return OutcomeAlreadyFinished, nil
	}

	if question.Age(e.now()) > e.config.Timeout {
		logger.InfoContext(ctx, "Question timed out", "age", question.Age(e.now()).String())

		return e.finish(ctx, logger, question, models.QuestionStatusFailed, e.config.Messages.Timeout, OutcomeTimedOut)
	}

	run, err := e.runs.FindActive(ctx, question.ID)
	if err != nil && !persistence.IsRunNotFound(err) {
		return OutcomeNoop, fmt.Errorf("failed to load active run: %w", err)
	}

	if run != nil {
		failed, err := e.events.ExistsByRunAndStatus(ctx, run.ID, models.EventStatusFailed)
		if err != nil {
			return OutcomeNoop, fmt.Errorf("failed to check failed events: %w", err)
		}

		if failed {
			logger.InfoContext(ctx, "Workflow run reported a failure", "run_id", run.ID)

			return e.finish(ctx, logger, question, models.QuestionStatusFailed, e.config.Messages.Failure, OutcomeFailed)
		}

		end, err := e.events.LatestByRunAndKind(ctx, run.ID, models.EventKindMessageEnd)
		if err != nil && !persistence.IsEventNotFound(err) {
			return OutcomeNoop, fmt.Errorf("failed to look up message end: %w", err)
		}

		if end != nil {
			content, err := e.LatestContent(ctx, question.ID, end.RunID)
			if err != nil {
				return OutcomeNoop, err
			}

			return e.finish(ctx, logger, question, models.QuestionStatusSucceeded, content, OutcomeSucceeded)
		}
	}

	if question.Status != models.QuestionStatusRunning {
		return OutcomeNoop, nil
	}

	runID := ""
	if run != nil {
		runID = run.ID
	}

	content, err := e.LatestContent(ctx, question.ID, runID)
	if err != nil {
		return OutcomeNoop, err
	}

	if content == question.Content {
		return OutcomeNoop, nil
	}

	update := models.ContentOnly(content)
	running := models.QuestionStatusRunning
	update.ExpectedStatus = &running

	updated, err := e.questions.ConditionalUpdate(ctx, question.ID, update)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("failed to refresh content: %w", err)
	}

	if !updated {
		return OutcomeAlreadyFinished, nil
	}

	logger.DebugContext(ctx, "Refreshed in-progress answer")

	return OutcomeRefreshed, nil
}

// LatestContent picks the answer to show: the newest non-empty message of runID, then the newest
// non-empty message of any run of the question, then the placeholder.
func (e *Engine) LatestContent(ctx context.Context, questionID, runID string) (string, error) {
	if runID != "" {
		message, err := e.events.LatestByRunAndKind(ctx, runID, models.EventKindMessage)
		if err != nil && !persistence.IsEventNotFound(err) {
			return "", fmt.Errorf("failed to load latest run message: %w", err)
		}

		if answer := message.Answer(); answer != "" {
			return answer, nil
		}
	}

	message, err := e.events.LatestByRecordAndKind(ctx, questionID, models.EventKindMessage)
	if err != nil && !persistence.IsEventNotFound(err) {
		return "", fmt.Errorf("failed to load latest question message: %w", err)
	}

	if answer := message.Answer(); answer != "" {
		return answer, nil
	}

	return e.config.Messages.Placeholder, nil
}

func (e *Engine) finish(
	ctx context.Context,
	logger *slog.Logger,
	question *models.Question,
	status models.QuestionStatus,
	content string,
	outcome Outcome,
) (Outcome, error) {
	updated, err := e.questions.ConditionalUpdate(ctx, question.ID, models.Terminal(status, content))
	if err != nil {
		return OutcomeNoop, fmt.Errorf("failed to finish question: %w", err)
	}

	if !updated {
		logger.DebugContext(ctx, "Question already finished by another evaluator")

		return OutcomeAlreadyFinished, nil
	}

	logger.InfoContext(ctx, "Question finished", "outcome", outcome, "final_status", status)

	e.announce(ctx, logger, question, status, content)

	return outcome, nil
}

func (e *Engine) announce(ctx context.Context, logger *slog.Logger, question *models.Question, status models.QuestionStatus, content string) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, question.ID, events.NewQuestionFinished(question, status, content))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish question finished event", "error", err)
	}
}
