// Package ingest persists the engine's server-sent event stream as workflow events.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dukex/botrelay/pkg/dify"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

const (
	dataPrefix  = "data:"
	eventPrefix = "event:"

	initialLineBuffer = 64 * 1024
	maxLineSize       = 4 * 1024 * 1024
)

// ErrMissingRunContext is logged when a caller ingests without a question/run association.
var ErrMissingRunContext = errors.New("missing run context")

var envelopeSchema = map[string]any{
	"type":     "object",
	"required": []any{"event"},
	"properties": map[string]any{
		"event":  map[string]any{"type": "string"},
		"answer": map[string]any{"type": "string"},
		"data":   map[string]any{"type": []any{"object", "null"}},
	},
}

// RunContext ties ingested events to the question and run they belong to.
type RunContext struct {
	QuestionID string
	RunID      string
}

func (r *RunContext) valid() bool {
	return r != nil && r.QuestionID != "" && r.RunID != ""
}

// Stats summarises one ingestion.
type Stats struct {
	Lines     int
	Persisted int
	Skipped   int
}

type Ingestor struct {
	events persistence.EventRepository
	runs   persistence.RunRepository
	schema *gojsonschema.Schema
	logger *slog.Logger
}

func NewIngestor(events persistence.EventRepository, runs persistence.RunRepository, logger *slog.Logger) (*Ingestor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile event envelope schema: %w", err)
	}

	return &Ingestor{
		events: events,
		runs:   runs,
		schema: schema,
		logger: logger.With("module", "stream_ingestor"),
	}, nil
}

// Ingest reads the stream line by line until EOF. Bad lines are logged and skipped; only a
// broken stream is returned as an error, after everything readable has been persisted.
func (i *Ingestor) Ingest(ctx context.Context, run *RunContext, stream io.Reader) (Stats, error) {
	var stats Stats

	logger := i.logger
	if run != nil {
		logger = logger.With("question_id", run.QuestionID, "run_id", run.RunID)
	}

	reader := bufio.NewReaderSize(stream, initialLineBuffer)

	for {
		line, tooLong, err := readLine(reader, maxLineSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return stats, fmt.Errorf("failed to read event stream: %w", err)
		}

		stats.Lines++

		if tooLong {
			logger.WarnContext(ctx, "Skipping oversized stream line", "limit_bytes", maxLineSize)

			stats.Skipped++

			continue
		}

		if i.ingestLine(ctx, logger, run, string(line)) {
			stats.Persisted++
		} else {
			stats.Skipped++
		}
	}

	logger.DebugContext(ctx, "Event stream ingested",
		"lines", stats.Lines, "persisted", stats.Persisted, "skipped", stats.Skipped)

	return stats, nil
}

// readLine returns the next line without its terminator. A line longer than limit is consumed
// and discarded, reported through tooLong, so the following lines stay readable.
func readLine(reader *bufio.Reader, limit int) ([]byte, bool, error) {
	var (
		line    []byte
		tooLong bool
	)

	for {
		fragment, isPrefix, err := reader.ReadLine()
		if err != nil {
			return nil, false, err
		}

		if !tooLong {
			if len(line)+len(fragment) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, fragment...)
			}
		}

		if !isPrefix {
			return line, tooLong, nil
		}
	}
}

// ingestLine reports whether the line was persisted.
func (i *Ingestor) ingestLine(ctx context.Context, logger *slog.Logger, run *RunContext, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, eventPrefix) {
		return false
	}

	if !strings.HasPrefix(line, dataPrefix) {
		logger.WarnContext(ctx, "Skipping unexpected stream line", "line", line)

		return false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" || payload == "null" {
		logger.WarnContext(ctx, "Skipping empty stream payload")

		return false
	}

	event, err := i.parse([]byte(payload))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to parse stream payload", "error", err, "payload", payload)

		return false
	}

	mapped, ok := Map(event)
	if !ok {
		logger.DebugContext(ctx, "Skipping unrecognized stream event", "event", event.Event)

		return false
	}

	if !run.valid() {
		logger.ErrorContext(ctx, "Cannot persist stream event", "error", ErrMissingRunContext, "event", event.Event)

		return false
	}

	workflowEvent := &models.WorkflowEvent{
		RunID:          run.RunID,
		QuestionID:     run.QuestionID,
		Kind:           mapped.Kind,
		Status:         mapped.Status,
		AnswerFragment: mapped.Fragment,
		Payload:        []byte(payload),
	}

	err = i.events.Append(ctx, workflowEvent)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist workflow event", "error", err, "event", event.Event)

		return false
	}

	i.updateRun(ctx, logger, run, event, mapped)

	return true
}

func (i *Ingestor) parse(payload []byte) (dify.StreamEvent, error) {
	var event dify.StreamEvent

	err := json.Unmarshal(payload, &event)
	if err != nil {
		return event, fmt.Errorf("invalid JSON: %w", err)
	}

	result, err := i.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return event, fmt.Errorf("failed to validate payload: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return event, fmt.Errorf("JSON schema validation failed: %s", strings.Join(messages, "; "))
	}

	return event, nil
}

// updateRun records engine identifiers and the newest answer on the run. Failures only cost
// the denormalised cache, so they are logged.
func (i *Ingestor) updateRun(ctx context.Context, logger *slog.Logger, run *RunContext, event dify.StreamEvent, mapped Mapped) {
	ids := models.RunIdentifiers{
		ConversationID: event.ConversationID,
		MessageID:      event.MessageID,
		TaskID:         event.TaskID,
		RunToken:       event.WorkflowRunID,
	}

	err := i.runs.FillIdentifiers(ctx, run.RunID, ids)
	if err != nil {
		logger.WarnContext(ctx, "Failed to record run identifiers", "error", err)
	}

	if mapped.Kind != models.EventKindMessage || mapped.Fragment == nil || *mapped.Fragment == "" {
		return
	}

	err = i.runs.UpdateLatestAnswer(ctx, run.RunID, *mapped.Fragment)
	if err != nil {
		logger.WarnContext(ctx, "Failed to update latest answer", "error", err)
	}
}
