// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrQuestionNotFound indicates a question was not found by the given identifier.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrQuestionAlreadyExists indicates a question with the same id or msg id already exists.
	ErrQuestionAlreadyExists = errors.New("question already exists")

	// ErrRunNotFound indicates a question has no workflow run yet.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrEventNotFound indicates no workflow event matched the query.
	ErrEventNotFound = errors.New("workflow event not found")

	// ErrLockBusy indicates the database refused the statement because of lock contention.
	// It is the only error class the retry policy retries.
	ErrLockBusy = errors.New("database lock busy")
)

// QuestionError wraps question-related errors with additional context.
type QuestionError struct {
	Op         string // Operation being performed (e.g., "FindByID", "ConditionalUpdate")
	QuestionID string // Question ID if applicable
	Err        error  // Underlying error
}

func (e *QuestionError) Error() string {
	return fmt.Sprintf("%s operation failed for question %s: %v", e.Op, e.QuestionID, e.Err)
}

func (e *QuestionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for question errors.
func (e *QuestionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewQuestionError creates a new question error with context.
func NewQuestionError(op, questionID string, err error) *QuestionError {
	return &QuestionError{
		Op:         op,
		QuestionID: questionID,
		Err:        err,
	}
}

// LockBusy marks a driver error as lock contention while keeping the original error in the chain.
func LockBusy(err error) error {
	return fmt.Errorf("%w: %w", ErrLockBusy, err)
}

// IsQuestionNotFound checks if an error indicates a question was not found.
func IsQuestionNotFound(err error) bool {
	return errors.Is(err, ErrQuestionNotFound)
}

// IsQuestionAlreadyExists checks if an error indicates a duplicated question.
func IsQuestionAlreadyExists(err error) bool {
	return errors.Is(err, ErrQuestionAlreadyExists)
}

// IsRunNotFound checks if an error indicates a missing workflow run.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsEventNotFound checks if an error indicates no workflow event matched.
func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// IsLockBusy checks if an error was caused by lock contention.
func IsLockBusy(err error) bool {
	return errors.Is(err, ErrLockBusy)
}
