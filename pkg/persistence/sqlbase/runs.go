package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/google/uuid"
)

// RunRepository handles workflow run database operations.
type RunRepository struct {
	store *Store
}

// Create inserts a new workflow run, assigning an id when none is set.
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	query := `
		INSERT INTO workflow_runs (
			id, question_id, conversation_id, message_id, task_id, run_token,
			latest_answer, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.store.exec(ctx, query,
		run.ID,
		run.QuestionID,
		run.ConversationID,
		run.MessageID,
		run.TaskID,
		run.RunToken,
		run.LatestAnswer,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow run: %w", err)
	}

	return nil
}

// FindActive returns the newest run of a question.
func (r *RunRepository) FindActive(ctx context.Context, questionID string) (*models.WorkflowRun, error) {
	query := `
		SELECT id, question_id, conversation_id, message_id, task_id, run_token,
			latest_answer, created_at, updated_at
		FROM workflow_runs
		WHERE question_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	run := &models.WorkflowRun{}

	err := r.store.queryRow(ctx, query, questionID).Scan(
		&run.ID,
		&run.QuestionID,
		&run.ConversationID,
		&run.MessageID,
		&run.TaskID,
		&run.RunToken,
		&run.LatestAnswer,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow run: %w", err)
	}

	return run, nil
}

// FillIdentifiers sets engine identifiers that are still empty on the run.
func (r *RunRepository) FillIdentifiers(ctx context.Context, runID string, ids models.RunIdentifiers) error {
	if ids.IsEmpty() {
		return nil
	}

	query := `
		UPDATE workflow_runs SET
			conversation_id = CASE WHEN conversation_id = '' THEN ? ELSE conversation_id END,
			message_id = CASE WHEN message_id = '' THEN ? ELSE message_id END,
			task_id = CASE WHEN task_id = '' THEN ? ELSE task_id END,
			run_token = CASE WHEN run_token = '' THEN ? ELSE run_token END,
			updated_at = ?
		WHERE id = ?
			AND (conversation_id = '' OR message_id = '' OR task_id = '' OR run_token = '')
	`

	_, err := r.store.exec(ctx, query,
		ids.ConversationID,
		ids.MessageID,
		ids.TaskID,
		ids.RunToken,
		time.Now().UTC(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to fill workflow run identifiers: %w", err)
	}

	return nil
}

// UpdateLatestAnswer caches the newest known answer on the run.
func (r *RunRepository) UpdateLatestAnswer(ctx context.Context, runID string, answer string) error {
	_, err := r.store.exec(ctx,
		`UPDATE workflow_runs SET latest_answer = ?, updated_at = ? WHERE id = ?`,
		answer, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update latest answer: %w", err)
	}

	return nil
}
