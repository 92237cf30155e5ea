package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
)

const eventColumns = `seq, run_id, question_id, event_kind, status, answer_fragment, payload, created_at`

// EventRepository handles workflow event database operations. Rows are never updated or deleted.
type EventRepository struct {
	store *Store
}

// Append inserts the event and sets its store-assigned sequence.
func (r *EventRepository) Append(ctx context.Context, event *models.WorkflowEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var fragment sql.NullString
	if event.AnswerFragment != nil {
		fragment = sql.NullString{String: *event.AnswerFragment, Valid: true}
	}

	query := r.store.dialect.Rebind(`
		INSERT INTO workflow_events (run_id, question_id, event_kind, status, answer_fragment, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING seq
	`)

	err := r.store.retry.Do(ctx, func() error {
		err := r.store.db.QueryRowContext(ctx, query,
			event.RunID,
			event.QuestionID,
			event.Kind,
			event.Status,
			fragment,
			string(event.Payload),
			event.CreatedAt,
		).Scan(&event.Sequence)

		return r.store.classify(err)
	})
	if err != nil {
		return fmt.Errorf("failed to append workflow event: %w", err)
	}

	return nil
}

// LatestByRunAndKind returns the newest event of a kind inside one run.
func (r *EventRepository) LatestByRunAndKind(ctx context.Context, runID string, kind models.EventKind) (*models.WorkflowEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM workflow_events
		WHERE run_id = ? AND event_kind = ?
		ORDER BY seq DESC
		LIMIT 1
	`

	return r.latest(ctx, query, runID, kind)
}

// LatestByRecordAndKind returns the newest event of a kind across every run of a question.
func (r *EventRepository) LatestByRecordAndKind(ctx context.Context, questionID string, kind models.EventKind) (*models.WorkflowEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM workflow_events
		WHERE question_id = ? AND event_kind = ?
		ORDER BY seq DESC
		LIMIT 1
	`

	return r.latest(ctx, query, questionID, kind)
}

// ExistsByRunAndStatus reports whether any event of the run carries the status.
func (r *EventRepository) ExistsByRunAndStatus(ctx context.Context, runID string, status models.EventStatus) (bool, error) {
	var exists int

	err := r.store.queryRow(ctx,
		`SELECT 1 FROM workflow_events WHERE run_id = ? AND status = ? LIMIT 1`,
		runID, status,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("failed to query workflow events: %w", err)
	}

	return true, nil
}

func (r *EventRepository) latest(ctx context.Context, query string, args ...any) (*models.WorkflowEvent, error) {
	event := &models.WorkflowEvent{}

	var (
		fragment sql.NullString
		payload  string
	)

	err := r.store.queryRow(ctx, query, args...).Scan(
		&event.Sequence,
		&event.RunID,
		&event.QuestionID,
		&event.Kind,
		&event.Status,
		&fragment,
		&payload,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEventNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow event: %w", err)
	}

	if fragment.Valid {
		event.AnswerFragment = &fragment.String
	}

	event.Payload = []byte(payload)

	return event, nil
}
