// Package events defines event types and structures for question lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/botrelay/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "botrelay.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Question lifecycle events.
	QuestionFinishedEvent EventType = "question.finished"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	QuestionID string         `json:"question_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// QuestionFinished is published once a question reaches a terminal status.
type QuestionFinished struct {
	BaseEvent

	Status  models.QuestionStatus `json:"status"`
	Content string                `json:"content"`
}

func (q QuestionFinished) GetType() EventType {
	return QuestionFinishedEvent
}

func NewBaseEvent(eventType EventType, questionID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		QuestionID: questionID,
		Metadata:   make(map[string]any),
	}
}

func NewQuestionFinished(question *models.Question, status models.QuestionStatus, content string) QuestionFinished {
	return QuestionFinished{
		BaseEvent: NewBaseEvent(QuestionFinishedEvent, question.ID),
		Status:    status,
		Content:   content,
	}
}
