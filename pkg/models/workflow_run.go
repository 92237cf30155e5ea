package models

import "time"

// WorkflowRun is one engine invocation made on behalf of a question.
type WorkflowRun struct {
	ID             string    `json:"id"`
	QuestionID     string    `json:"question_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	TaskID         string    `json:"task_id"`
	RunToken       string    `json:"run_token"` // workflow_run_id reported by the engine
	LatestAnswer   string    `json:"latest_answer"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RunIdentifiers are the engine-side identifiers learned while a run streams.
type RunIdentifiers struct {
	ConversationID string
	MessageID      string
	TaskID         string
	RunToken       string
}

// IsEmpty reports whether none of the identifiers are known.
func (r RunIdentifiers) IsEmpty() bool {
	return r.ConversationID == "" && r.MessageID == "" && r.TaskID == "" && r.RunToken == ""
}
