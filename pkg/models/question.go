// Package models defines the domain models for chat questions and the workflow runs answering them.
package models

import "time"

// QuestionStatus represents the lifecycle state of a question.
type QuestionStatus string

const (
	QuestionStatusPending   QuestionStatus = "pending"   // Accepted, waiting for the advance sweep
	QuestionStatusRunning   QuestionStatus = "running"   // Sent to the engine, answer streaming in
	QuestionStatusSucceeded QuestionStatus = "succeeded" // Terminal
	QuestionStatusFailed    QuestionStatus = "failed"    // Terminal
)

// IsTerminal reports whether the status ends the question lifecycle.
func (s QuestionStatus) IsTerminal() bool {
	return s == QuestionStatusSucceeded || s == QuestionStatusFailed
}

// Valid reports whether the status belongs to the known vocabulary.
func (s QuestionStatus) Valid() bool {
	switch s {
	case QuestionStatusPending, QuestionStatusRunning, QuestionStatusSucceeded, QuestionStatusFailed:
		return true
	default:
		return false
	}
}

// Question is one inbound chat message that requires an answer.
// Finish and Status move together: Finish is true iff Status is terminal.
type Question struct {
	ID         string         `json:"id"` // Stream token handed back to the chat client
	MsgID      string         `json:"msg_id"`
	AibotID    string         `json:"aibot_id"`
	ChatID     string         `json:"chat_id"`
	ChatType   string         `json:"chat_type"`
	ChatOrigin string         `json:"chat_origin"` // Sender identity, forwarded to the engine as the user
	QueryText  string         `json:"query_text"`
	Status     QuestionStatus `json:"status"`
	Finish     bool           `json:"finish"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Age returns how long ago the question was created relative to now.
func (q *Question) Age(now time.Time) time.Duration {
	return now.Sub(q.CreatedAt)
}

// QuestionUpdate describes a guarded write against a question that is not finished yet.
// Nil fields are left untouched. ExpectedStatus, when set, narrows the guard further.
type QuestionUpdate struct {
	Status         *QuestionStatus
	Finish         *bool
	Content        *string
	ExpectedStatus *QuestionStatus
}

// Terminal builds the update that finishes a question with the given status and content.
func Terminal(status QuestionStatus, content string) QuestionUpdate {
	finish := true

	return QuestionUpdate{
		Status:  &status,
		Finish:  &finish,
		Content: &content,
	}
}

// ContentOnly builds the update that refreshes the visible answer of a running question.
func ContentOnly(content string) QuestionUpdate {
	return QuestionUpdate{Content: &content}
}

// StatusTransition builds the update that moves a question from one non-terminal status to another.
func StatusTransition(from, to QuestionStatus) QuestionUpdate {
	return QuestionUpdate{
		Status:         &to,
		ExpectedStatus: &from,
	}
}

// IsEmpty reports whether the update would not change any column.
func (u QuestionUpdate) IsEmpty() bool {
	return u.Status == nil && u.Finish == nil && u.Content == nil
}
