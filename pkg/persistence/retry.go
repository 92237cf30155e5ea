package persistence

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a write is re-attempted after lock contention.
// Errors that are not lock contention are returned immediately.
type RetryPolicy struct {
	MaxRetries          int           `yaml:"max_retries"          validate:"gte=0,lte=5"`
	Delay               time.Duration `yaml:"delay"                validate:"gte=0"`
	RandomizationFactor float64       `yaml:"randomization_factor" validate:"gte=0,lte=1"`
}

// DefaultRetryPolicy retries once after roughly 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          1,
		Delay:               50 * time.Millisecond,
		RandomizationFactor: 0.5,
	}
}

// Do runs operation and re-runs it while it fails with ErrLockBusy and retries remain.
func (p RetryPolicy) Do(ctx context.Context, operation func() error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = p.Delay
	expBackoff.RandomizationFactor = p.RandomizationFactor
	expBackoff.Multiplier = 1
	expBackoff.MaxElapsedTime = 0

	retries := 0
	if p.MaxRetries > 0 {
		retries = p.MaxRetries
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(retries)), ctx)

	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}

		if IsLockBusy(err) {
			return err
		}

		return backoff.Permanent(err)
	}, policy)
}
