// Package sqlite provides the embedded SQLite persistence implementation, used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/persistence/sqlbase"
	"github.com/mattn/go-sqlite3"
)

// Dialect returns the sqlbase dialect for mattn/go-sqlite3.
func Dialect() sqlbase.Dialect {
	return sqlbase.Dialect{
		Name:              "sqlite",
		DriverName:        "sqlite3",
		Placeholder:       sqlbase.PlaceholderQuestion,
		Migrations:        migrations(),
		IsLockBusy:        isLockBusy,
		IsUniqueViolation: isUniqueViolation,
		Configure:         configure,
	}
}

// NewPersistence opens (or creates) the SQLite database at path and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string, retry persistence.RetryPolicy) (*sqlbase.Store, error) {
	return sqlbase.Open(ctx, logger, Dialect(), path, retry)
}

// configure limits the pool to a single writer and applies the required pragmas.
func configure(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func isLockBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
