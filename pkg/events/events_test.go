package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/botrelay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionFinished_GetType(t *testing.T) {
	event := QuestionFinished{}
	assert.Equal(t, QuestionFinishedEvent, event.GetType())
}

func TestNewQuestionFinished(t *testing.T) {
	question := &models.Question{ID: "stream-1"}

	event := NewQuestionFinished(question, models.QuestionStatusSucceeded, "42")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, QuestionFinishedEvent, event.Type)
	assert.Equal(t, "stream-1", event.QuestionID)
	assert.False(t, event.Timestamp.IsZero())

	jsonData, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"question.finished"`)
	assert.Contains(t, string(jsonData), `"status":"succeeded"`)
	assert.Contains(t, string(jsonData), `"content":"42"`)
}
