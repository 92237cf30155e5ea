package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dukex/botrelay/pkg/dify"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestor(t *testing.T) (*Ingestor, persistence.Persistence, *RunContext) {
	t.Helper()

	store := testutil.NewStore(t)
	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))
	run := testutil.SeedRun(t, store, question.ID)

	ingestor, err := NewIngestor(store.Events(), store.Runs(), testutil.Logger())
	require.NoError(t, err)

	return ingestor, store, &RunContext{QuestionID: question.ID, RunID: run.ID}
}

func TestIngest_MalformedLineDoesNotAbort(t *testing.T) {
	ingestor, store, run := newTestIngestor(t)
	ctx := context.Background()

	stream := strings.Join([]string{
		"data: not-json",
		`data: {"event":"message","answer":"42","conversation_id":"conv-1","message_id":"msg-1","task_id":"task-1"}`,
	}, "\n")

	stats, err := ingestor.Ingest(ctx, run, strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, Stats{Lines: 2, Persisted: 1, Skipped: 1}, stats)

	event, err := store.Events().LatestByRunAndKind(ctx, run.RunID, models.EventKindMessage)
	require.NoError(t, err)
	assert.Equal(t, "42", event.Answer())
	assert.Equal(t, models.EventStatusRunning, event.Status)
	assert.Equal(t, run.QuestionID, event.QuestionID)

	active, err := store.Runs().FindActive(ctx, run.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", active.ConversationID)
	assert.Equal(t, "msg-1", active.MessageID)
	assert.Equal(t, "task-1", active.TaskID)
	assert.Equal(t, "42", active.LatestAnswer)
}

func TestIngest_SkipsNoise(t *testing.T) {
	ingestor, store, run := newTestIngestor(t)
	ctx := context.Background()

	stream := strings.Join([]string{
		"",
		"event: ping",
		": keep-alive comment",
		"data:",
		"data: null",
		`data: {"answer":"no event field"}`,
		`data: {"event":42}`,
		`data: {"event":"workflow_started","workflow_run_id":"wr-1"}`,
		`data: {"event":"message_end","conversation_id":"conv-1"}`,
		"",
	}, "\n")

	stats, err := ingestor.Ingest(ctx, run, strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Persisted)
	assert.Equal(t, stats.Lines-1, stats.Skipped)

	end, err := store.Events().LatestByRunAndKind(ctx, run.RunID, models.EventKindMessageEnd)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusSucceeded, end.Status)
	assert.Nil(t, end.AnswerFragment)

	_, err = store.Events().LatestByRunAndKind(ctx, run.RunID, models.EventKindMessage)
	assert.True(t, persistence.IsEventNotFound(err))
}

func TestIngest_MissingRunContext(t *testing.T) {
	ingestor, store, run := newTestIngestor(t)
	ctx := context.Background()

	stream := `data: {"event":"message","answer":"lost"}`

	for _, missing := range []*RunContext{nil, {QuestionID: run.QuestionID}} {
		stats, err := ingestor.Ingest(ctx, missing, strings.NewReader(stream))
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Persisted)
		assert.Equal(t, 1, stats.Skipped)
	}

	_, err := store.Events().LatestByRecordAndKind(ctx, run.QuestionID, models.EventKindMessage)
	assert.True(t, persistence.IsEventNotFound(err))
}

func TestIngest_FailedNodeRecordsFailure(t *testing.T) {
	ingestor, store, run := newTestIngestor(t)
	ctx := context.Background()

	stream := `data: {"event":"node_finished","workflow_run_id":"wr-9","data":{"status":"exception","error":"boom"}}`

	stats, err := ingestor.Ingest(ctx, run, strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Persisted)

	failed, err := store.Events().ExistsByRunAndStatus(ctx, run.RunID, models.EventStatusFailed)
	require.NoError(t, err)
	assert.True(t, failed)

	active, err := store.Runs().FindActive(ctx, run.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, "wr-9", active.RunToken)
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true

		return copy(p, r.data), nil
	}

	return 0, errors.New("connection reset")
}

func TestIngest_BrokenStreamKeepsPersistedLines(t *testing.T) {
	ingestor, store, run := newTestIngestor(t)
	ctx := context.Background()

	reader := &failingReader{data: "data: {\"event\":\"message\",\"answer\":\"partial\"}\n"}

	stats, err := ingestor.Ingest(ctx, run, reader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, stats.Persisted)

	event, err := store.Events().LatestByRunAndKind(ctx, run.RunID, models.EventKindMessage)
	require.NoError(t, err)
	assert.Equal(t, "partial", event.Answer())
}

func TestIngest_OversizedLineDoesNotAbort(t *testing.T) {
	ingestor, store, run := newTestIngestor(t)
	ctx := context.Background()

	oversized := `data: {"event":"node_finished","data":{"status":"succeeded","outputs":"` +
		strings.Repeat("x", maxLineSize) + `"}}`

	stream := strings.Join([]string{
		oversized,
		`data: {"event":"message","answer":"42"}`,
		`data: {"event":"message_end"}`,
	}, "\n")

	stats, err := ingestor.Ingest(ctx, run, strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, Stats{Lines: 3, Persisted: 2, Skipped: 1}, stats)

	_, err = store.Events().LatestByRunAndKind(ctx, run.RunID, models.EventKindNodeFinished)
	require.ErrorIs(t, err, persistence.ErrEventNotFound)

	_, err = store.Events().LatestByRunAndKind(ctx, run.RunID, models.EventKindMessageEnd)
	require.NoError(t, err)

	event, err := store.Events().LatestByRunAndKind(ctx, run.RunID, models.EventKindMessage)
	require.NoError(t, err)
	assert.Equal(t, "42", event.Answer())
}

func TestReadLine(t *testing.T) {
	reader := bufio.NewReaderSize(strings.NewReader("short\n"+strings.Repeat("y", 40)+"\nlast"), 16)

	line, tooLong, err := readLine(reader, 32)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "short", string(line))

	line, tooLong, err = readLine(reader, 32)
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.Nil(t, line)

	line, tooLong, err = readLine(reader, 32)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "last", string(line))

	_, _, err = readLine(reader, 32)
	require.ErrorIs(t, err, io.EOF)
}

func TestMap(t *testing.T) {
	tests := []struct {
		name       string
		event      dify.StreamEvent
		wantOK     bool
		wantKind   models.EventKind
		wantStatus models.EventStatus
		wantAnswer *string
	}{
		{
			name:       "message",
			event:      dify.StreamEvent{Event: "message", Answer: "hello"},
			wantOK:     true,
			wantKind:   models.EventKindMessage,
			wantStatus: models.EventStatusRunning,
			wantAnswer: ptr("hello"),
		},
		{
			name:       "message end",
			event:      dify.StreamEvent{Event: "message_end"},
			wantOK:     true,
			wantKind:   models.EventKindMessageEnd,
			wantStatus: models.EventStatusSucceeded,
		},
		{
			name:       "node succeeded",
			event:      dify.StreamEvent{Event: "node_finished", Data: dify.EventData{Status: "succeeded"}},
			wantOK:     true,
			wantKind:   models.EventKindNodeFinished,
			wantStatus: models.EventStatusSucceeded,
		},
		{
			name:       "workflow stopped",
			event:      dify.StreamEvent{Event: "workflow_finished", Data: dify.EventData{Status: "stopped"}},
			wantOK:     true,
			wantKind:   models.EventKindWorkflowFinished,
			wantStatus: models.EventStatusFailed,
		},
		{
			name:       "node without status",
			event:      dify.StreamEvent{Event: "node_finished"},
			wantOK:     true,
			wantKind:   models.EventKindNodeFinished,
			wantStatus: models.EventStatusRunning,
		},
		{
			name:       "engine error",
			event:      dify.StreamEvent{Event: "error", Message: "quota exceeded"},
			wantOK:     true,
			wantKind:   models.EventKindOther,
			wantStatus: models.EventStatusFailed,
		},
		{
			name:  "ping",
			event: dify.StreamEvent{Event: "ping"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped, ok := Map(tt.event)
			assert.Equal(t, tt.wantOK, ok)

			if !tt.wantOK {
				return
			}

			assert.Equal(t, tt.wantKind, mapped.Kind)
			assert.Equal(t, tt.wantStatus, mapped.Status)
			assert.Equal(t, tt.wantAnswer, mapped.Fragment)
		})
	}
}

func ptr(s string) *string {
	return &s
}
