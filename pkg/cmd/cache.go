package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/botrelay/pkg/cache"
)

// NewAnswerCache connects to Redis when redisURL is set and otherwise returns a cache that always misses.
func NewAnswerCache(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) (cache.AnswerCache, error) {
	if redisURL == "" {
		logger.InfoContext(ctx, "No Redis URL configured, answer cache disabled")

		return cache.NoopCache{}, nil
	}

	redisCache, err := cache.NewRedisCache(ctx, redisURL, ttl, logger)
	if err != nil {
		return nil, err
	}

	return redisCache, nil
}
