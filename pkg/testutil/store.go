// Package testutil provides test data builders and a disposable store for tests.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/persistence/sqlbase"
	"github.com/dukex/botrelay/pkg/persistence/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Logger returns a logger that only prints errors, keeping test output readable.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// NewStore opens a migrated SQLite store in a temporary directory, closed on cleanup.
func NewStore(t *testing.T) *sqlbase.Store {
	t.Helper()

	ctx := context.Background()

	store, err := sqlite.NewPersistence(ctx, Logger(), filepath.Join(t.TempDir(), "botrelay.db"), persistence.DefaultRetryPolicy())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close(ctx))
	})

	return store
}

// CreateTestQuestion builds a pending question with default values that can be overridden.
func CreateTestQuestion(overrides ...func(*models.Question)) *models.Question {
	question := &models.Question{
		ID:         uuid.New().String(),
		MsgID:      uuid.New().String(),
		AibotID:    "aibot-test",
		ChatID:     "chat-test",
		ChatType:   "single",
		ChatOrigin: "user-test",
		QueryText:  "what is the answer?",
		Status:     models.QuestionStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	for _, override := range overrides {
		override(question)
	}

	return question
}

// WithStatus sets the question status and the matching finish flag.
func WithStatus(status models.QuestionStatus) func(*models.Question) {
	return func(q *models.Question) {
		q.Status = status
		q.Finish = status.IsTerminal()
	}
}

// WithAge moves the creation time into the past.
func WithAge(age time.Duration) func(*models.Question) {
	return func(q *models.Question) {
		q.CreatedAt = time.Now().UTC().Add(-age)
	}
}

// WithCreatedAt sets an absolute creation time.
func WithCreatedAt(createdAt time.Time) func(*models.Question) {
	return func(q *models.Question) {
		q.CreatedAt = createdAt.UTC()
	}
}

// WithContent sets the visible answer.
func WithContent(content string) func(*models.Question) {
	return func(q *models.Question) {
		q.Content = content
	}
}

// SeedQuestion creates the question in the store.
func SeedQuestion(t *testing.T, store persistence.Persistence, overrides ...func(*models.Question)) *models.Question {
	t.Helper()

	question := CreateTestQuestion(overrides...)
	require.NoError(t, store.Questions().Create(context.Background(), question))

	return question
}

// SeedRun creates a run for the question.
func SeedRun(t *testing.T, store persistence.Persistence, questionID string) *models.WorkflowRun {
	t.Helper()

	run := &models.WorkflowRun{QuestionID: questionID}
	require.NoError(t, store.Runs().Create(context.Background(), run))

	return run
}

// SeedEvent appends an event to the run. An empty answer stores no fragment.
func SeedEvent(t *testing.T, store persistence.Persistence, run *models.WorkflowRun, kind models.EventKind, status models.EventStatus, answer string) *models.WorkflowEvent {
	t.Helper()

	event := &models.WorkflowEvent{
		RunID:      run.ID,
		QuestionID: run.QuestionID,
		Kind:       kind,
		Status:     status,
		Payload:    []byte(`{"event":"` + string(kind) + `"}`),
	}

	if answer != "" {
		event.AnswerFragment = &answer
	}

	require.NoError(t, store.Events().Append(context.Background(), event))

	return event
}
