// Package persistence provides the storage abstraction for questions, workflow runs and workflow events.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/botrelay/pkg/models"
)

// QuestionRepository stores chat questions. Every mutating write is guarded by finish = false
// so concurrent evaluators can never overwrite a terminal question.
type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	FindByID(ctx context.Context, id string) (*models.Question, error)
	FindByMsgID(ctx context.Context, msgID string) (*models.Question, error)

	// FindEligibleAdvance returns up to limit pending questions created after now-window, oldest first.
	FindEligibleAdvance(ctx context.Context, limit int, now time.Time, window time.Duration) ([]*models.Question, error)

	// FindEligibleReconcile returns up to limit unfinished questions regardless of status, oldest first.
	FindEligibleReconcile(ctx context.Context, limit int) ([]*models.Question, error)

	// ConditionalUpdate applies update only while the question is unfinished (and in
	// update.ExpectedStatus when set). It reports whether a row was affected; zero rows is not an error.
	ConditionalUpdate(ctx context.Context, id string, update models.QuestionUpdate) (bool, error)
}

// RunRepository stores engine invocations.
type RunRepository interface {
	Create(ctx context.Context, run *models.WorkflowRun) error

	// FindActive returns the newest run of a question.
	FindActive(ctx context.Context, questionID string) (*models.WorkflowRun, error)

	// FillIdentifiers sets engine identifiers that are still empty; known values are never replaced.
	FillIdentifiers(ctx context.Context, runID string, ids models.RunIdentifiers) error
	UpdateLatestAnswer(ctx context.Context, runID string, answer string) error
}

// EventRepository stores workflow events. Events are append-only.
type EventRepository interface {
	Append(ctx context.Context, event *models.WorkflowEvent) error
	LatestByRunAndKind(ctx context.Context, runID string, kind models.EventKind) (*models.WorkflowEvent, error)
	LatestByRecordAndKind(ctx context.Context, questionID string, kind models.EventKind) (*models.WorkflowEvent, error)
	ExistsByRunAndStatus(ctx context.Context, runID string, status models.EventStatus) (bool, error)
}

type Persistence interface {
	Questions() QuestionRepository
	Runs() RunRepository
	Events() EventRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
