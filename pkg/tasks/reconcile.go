package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// Reconcile runs one state machine evaluation for a question.
type Reconcile struct {
	questionID string
	reconciler Reconciler
	logger     *slog.Logger
}

func (r *Reconcile) Kind() Kind {
	return KindReconcile
}

func (r *Reconcile) QuestionID() string {
	return r.questionID
}

func (r *Reconcile) Run(ctx context.Context) (result Result) {
	result = Result{Kind: KindReconcile, QuestionID: r.questionID}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "Reconcile task panicked", "panic", rec)

			result.Outcome = OutcomeError
			result.Err = fmt.Errorf("reconcile task panicked: %v", rec)
		}
	}()

	outcome, err := r.reconciler.Reconcile(ctx, r.questionID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Reconcile task failed", "error", err)

		result.Outcome = OutcomeError
		result.Err = err

		return result
	}

	r.logger.DebugContext(ctx, "Reconcile task completed", "outcome", outcome)

	result.Outcome = string(outcome)

	return result
}
