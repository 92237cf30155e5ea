package models

import "time"

// EventKind is the fixed vocabulary of persisted engine events.
type EventKind string

const (
	EventKindMessage          EventKind = "message"
	EventKindMessageEnd       EventKind = "message_end"
	EventKindNodeFinished     EventKind = "node_finished"
	EventKindWorkflowFinished EventKind = "workflow_finished"
	EventKindOther            EventKind = "other"
)

// EventStatus is the node or run level status carried by an event.
type EventStatus string

const (
	EventStatusRunning   EventStatus = "running"
	EventStatusSucceeded EventStatus = "succeeded"
	EventStatusFailed    EventStatus = "failed"
)

// WorkflowEvent is an append-only row holding one event emitted by the engine for a run.
// Sequence orders events inside a run and is assigned by the store.
type WorkflowEvent struct {
	Sequence       int64       `json:"sequence"`
	RunID          string      `json:"run_id"`
	QuestionID     string      `json:"question_id"`
	Kind           EventKind   `json:"event_kind"`
	Status         EventStatus `json:"status"`
	AnswerFragment *string     `json:"answer_fragment,omitempty"`
	Payload        []byte      `json:"payload,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Answer returns the answer fragment or an empty string.
func (e *WorkflowEvent) Answer() string {
	if e == nil || e.AnswerFragment == nil {
		return ""
	}

	return *e.AnswerFragment
}
