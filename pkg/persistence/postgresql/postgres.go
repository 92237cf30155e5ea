// Package postgresql provides the PostgreSQL persistence implementation for questions, runs and events.
package postgresql

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

// Dialect returns the sqlbase dialect for lib/pq.
func Dialect() sqlbase.Dialect {
	return sqlbase.Dialect{
		Name:              "postgres",
		DriverName:        "postgres",
		Placeholder:       sqlbase.PlaceholderDollar,
		Migrations:        migrations(),
		IsLockBusy:        isLockBusy,
		IsUniqueViolation: isUniqueViolation,
	}
}

// NewPersistence creates a new PostgreSQL persistence layer and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, retry persistence.RetryPolicy) (*sqlbase.Store, error) {
	return sqlbase.Open(ctx, logger, Dialect(), databaseURL, retry)
}

func isLockBusy(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	switch pqErr.Code.Name() {
	case "lock_not_available", "deadlock_detected", "serialization_failure":
		return true
	default:
		return false
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	return pqErr.Code.Name() == "unique_violation"
}
