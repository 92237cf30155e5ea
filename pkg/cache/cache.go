// Package cache keeps finished answers close to the gateway so stream polls rarely hit the store.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/botrelay/pkg/events"
	"github.com/dukex/botrelay/pkg/models"
)

const DefaultTTL = 10 * time.Minute

// Answer is what a stream poll needs to reply.
type Answer struct {
	Status  models.QuestionStatus `json:"status"`
	Finish  bool                  `json:"finish"`
	Content string                `json:"content"`
}

type AnswerCache interface {
	// Get reports a miss with found = false and a nil error.
	Get(ctx context.Context, questionID string) (answer *Answer, found bool, err error)
	Set(ctx context.Context, questionID string, answer Answer) error
	Close() error
}

// NoopCache is used when no cache backend is configured. Every lookup misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*Answer, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(context.Context, string, Answer) error {
	return nil
}

func (NoopCache) Close() error {
	return nil
}

// FinishedHandler stores the answer of every question.finished event.
// Failures are logged and swallowed: the store still has the answer, and a nack would only
// redeliver the same event in a loop.
func FinishedHandler(cache AnswerCache, logger *slog.Logger) func(ctx context.Context, event any) error {
	logger = logger.With("module", "answer_cache")

	return func(ctx context.Context, event any) error {
		finished, ok := event.(*events.QuestionFinished)
		if !ok {
			return fmt.Errorf("unexpected event type %T", event)
		}

		err := cache.Set(ctx, finished.QuestionID, Answer{
			Status:  finished.Status,
			Finish:  true,
			Content: finished.Content,
		})
		if err != nil {
			logger.WarnContext(ctx, "Failed to cache finished answer", "question_id", finished.QuestionID, "error", err)

			return nil
		}

		logger.DebugContext(ctx, "Cached finished answer", "question_id", finished.QuestionID, "status", finished.Status)

		return nil
	}
}
