package dify

// Stream event names emitted by the chat-messages endpoint.
const (
	EventMessage          = "message"
	EventMessageEnd       = "message_end"
	EventNodeFinished     = "node_finished"
	EventWorkflowFinished = "workflow_finished"
	EventError            = "error"
)

// StreamEvent is the envelope of one "data:" line. Only the fields the relay reads are declared.
type StreamEvent struct {
	Event          string    `json:"event"`
	TaskID         string    `json:"task_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	WorkflowRunID  string    `json:"workflow_run_id,omitempty"`
	Answer         string    `json:"answer,omitempty"`
	Message        string    `json:"message,omitempty"`
	Data           EventData `json:"data"`
}

type EventData struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}
