package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/botrelay/pkg/ingest"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
)

const (
	OutcomeSkipped   = "skipped"
	OutcomeIngested  = "ingested"
	OutcomeSendError = "send_failed"
	OutcomeDeadline  = "deadline_exceeded"
	OutcomeError     = "error"
)

// Advance claims a pending question, asks the engine and ingests the answer stream.
type Advance struct {
	questionID string
	store      persistence.Persistence
	engine     Engine
	ingestor   StreamIngestor
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func (a *Advance) Kind() Kind {
	return KindAdvance
}

func (a *Advance) QuestionID() string {
	return a.questionID
}

func (a *Advance) Run(ctx context.Context) (result Result) {
	result = Result{Kind: KindAdvance, QuestionID: a.questionID}

	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "Advance task panicked", "panic", r)

			result.Outcome = OutcomeError
			result.Err = fmt.Errorf("advance task panicked: %v", r)
		}
	}()

	outcome, err := a.run(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Advance task failed", "error", err)
	}

	result.Outcome = outcome
	result.Err = err

	return result
}

func (a *Advance) run(ctx context.Context) (string, error) {
	question, err := a.store.Questions().FindByID(ctx, a.questionID)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to load question: %w", err)
	}

	if question.Finish || question.Status != models.QuestionStatusPending {
		a.logger.DebugContext(ctx, "Question no longer pending", "status", question.Status)

		return OutcomeSkipped, nil
	}

	deadline := question.CreatedAt.Add(a.timeout)
	if !a.now().Before(deadline) {
		a.logger.DebugContext(ctx, "Question past its deadline, leaving it to the timeout")

		return OutcomeSkipped, nil
	}

	claimed, err := a.store.Questions().ConditionalUpdate(ctx, question.ID,
		models.StatusTransition(models.QuestionStatusPending, models.QuestionStatusRunning))
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to mark question running: %w", err)
	}

	if !claimed {
		a.logger.DebugContext(ctx, "Question claimed elsewhere")

		return OutcomeSkipped, nil
	}

	run := &models.WorkflowRun{QuestionID: question.ID}

	err = a.store.Runs().Create(ctx, run)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to create workflow run: %w", err)
	}

	logger := a.logger.With("run_id", run.ID)
	logger.InfoContext(ctx, "Sending question to workflow engine")

	// The engine call is bounded by the question deadline. Store writes keep using ctx so events
	// read before the deadline are still persisted.
	engineCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	stream, err := a.engine.SendQuery(engineCtx, question.QueryText, question.ChatOrigin)
	if err != nil {
		if engineCtx.Err() != nil {
			return OutcomeDeadline, fmt.Errorf("question deadline passed while sending query: %w", err)
		}

		a.recordSendFailure(ctx, logger, run, err)

		return OutcomeSendError, fmt.Errorf("failed to send query: %w", err)
	}

	// Closing the stream unblocks a read that is stalled waiting for the engine.
	stopClose := context.AfterFunc(engineCtx, func() {
		_ = stream.Close()
	})
	defer stopClose()

	defer func() {
		closeErr := stream.Close()
		if closeErr != nil {
			logger.WarnContext(ctx, "Failed to close event stream", "error", closeErr)
		}
	}()

	stats, err := a.ingestor.Ingest(ctx, &ingest.RunContext{QuestionID: question.ID, RunID: run.ID}, stream)
	if err != nil {
		if engineCtx.Err() != nil {
			logger.WarnContext(ctx, "Abandoned event stream at question deadline",
				"persisted", stats.Persisted, "deadline", deadline)

			return OutcomeDeadline, fmt.Errorf("event stream abandoned at question deadline: %w", engineCtx.Err())
		}

		return OutcomeError, fmt.Errorf("failed to ingest event stream: %w", err)
	}

	logger.InfoContext(ctx, "Workflow stream ingested", "persisted", stats.Persisted, "skipped", stats.Skipped)

	return OutcomeIngested, nil
}

// recordSendFailure appends a failed event so the next reconcile finishes the question.
func (a *Advance) recordSendFailure(ctx context.Context, logger *slog.Logger, run *models.WorkflowRun, cause error) {
	payload, _ := json.Marshal(map[string]string{
		"event":   "error",
		"message": cause.Error(),
	})

	event := &models.WorkflowEvent{
		RunID:      run.ID,
		QuestionID: run.QuestionID,
		Kind:       models.EventKindOther,
		Status:     models.EventStatusFailed,
		Payload:    payload,
	}

	err := a.store.Events().Append(ctx, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record engine failure, leaving question to the timeout", "error", err)
	}
}
