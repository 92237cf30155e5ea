package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
)

const questionColumns = `id, msg_id, aibot_id, chat_id, chat_type, chat_origin, query_text,
	status, finish, content, created_at, updated_at`

// QuestionRepository handles question-related database operations.
type QuestionRepository struct {
	store *Store
}

// Create inserts a new question. Duplicate ids or msg ids yield ErrQuestionAlreadyExists.
func (r *QuestionRepository) Create(ctx context.Context, question *models.Question) error {
	now := time.Now().UTC()
	if question.CreatedAt.IsZero() {
		question.CreatedAt = now
	}

	question.CreatedAt = question.CreatedAt.UTC()
	question.UpdatedAt = now

	if question.Status == "" {
		question.Status = models.QuestionStatusPending
	}

	query := `
		INSERT INTO questions (` + questionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.store.exec(ctx, query,
		question.ID,
		question.MsgID,
		question.AibotID,
		question.ChatID,
		question.ChatType,
		question.ChatOrigin,
		question.QueryText,
		question.Status,
		question.Finish,
		question.Content,
		question.CreatedAt,
		question.UpdatedAt,
	)
	if err != nil {
		if r.store.dialect.IsUniqueViolation != nil && r.store.dialect.IsUniqueViolation(err) {
			return persistence.NewQuestionError("Create", question.ID, persistence.ErrQuestionAlreadyExists)
		}

		return fmt.Errorf("failed to save question: %w", err)
	}

	return nil
}

// FindByID retrieves a question by its stream id.
func (r *QuestionRepository) FindByID(ctx context.Context, id string) (*models.Question, error) {
	row := r.store.queryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)

	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewQuestionError("FindByID", id, persistence.ErrQuestionNotFound)
		}

		return nil, fmt.Errorf("failed to scan question: %w", err)
	}

	return question, nil
}

// FindByMsgID retrieves a question by the chat platform message id.
func (r *QuestionRepository) FindByMsgID(ctx context.Context, msgID string) (*models.Question, error) {
	row := r.store.queryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE msg_id = ?`, msgID)

	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewQuestionError("FindByMsgID", msgID, persistence.ErrQuestionNotFound)
		}

		return nil, fmt.Errorf("failed to scan question: %w", err)
	}

	return question, nil
}

// FindEligibleAdvance returns pending questions still inside the freshness window, oldest first.
func (r *QuestionRepository) FindEligibleAdvance(ctx context.Context, limit int, now time.Time, window time.Duration) ([]*models.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions
		WHERE status = ? AND finish = ? AND created_at > ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	return r.list(ctx, query, models.QuestionStatusPending, false, now.Add(-window).UTC(), limit)
}

// FindEligibleReconcile returns unfinished questions regardless of status, oldest first.
func (r *QuestionRepository) FindEligibleReconcile(ctx context.Context, limit int) ([]*models.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions
		WHERE finish = ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	return r.list(ctx, query, false, limit)
}

// ConditionalUpdate writes the update in a single statement guarded by finish = false.
func (r *QuestionRepository) ConditionalUpdate(ctx context.Context, id string, update models.QuestionUpdate) (bool, error) {
	if update.IsEmpty() {
		return false, nil
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 7)

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}

	if update.Finish != nil {
		sets = append(sets, "finish = ?")
		args = append(args, *update.Finish)
	}

	if update.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *update.Content)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())

	query := `UPDATE questions SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND finish = ?`
	args = append(args, id, false)

	if update.ExpectedStatus != nil {
		query += ` AND status = ?`
		args = append(args, *update.ExpectedStatus)
	}

	affected, err := r.store.exec(ctx, query, args...)
	if err != nil {
		return false, persistence.NewQuestionError("ConditionalUpdate", id, err)
	}

	return affected > 0, nil
}

func (r *QuestionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Question, error) {
	rows, err := r.store.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}

	defer r.store.closeRows(ctx, rows)

	questions := make([]*models.Question, 0)

	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}

		questions = append(questions, question)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}

	return questions, nil
}

func scanQuestion(scanner interface {
	Scan(dest ...any) error
}) (*models.Question, error) {
	question := &models.Question{}

	err := scanner.Scan(
		&question.ID,
		&question.MsgID,
		&question.AibotID,
		&question.ChatID,
		&question.ChatType,
		&question.ChatOrigin,
		&question.QueryText,
		&question.Status,
		&question.Finish,
		&question.Content,
		&question.CreatedAt,
		&question.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	question.CreatedAt = question.CreatedAt.UTC()
	question.UpdatedAt = question.UpdatedAt.UTC()

	return question, nil
}
