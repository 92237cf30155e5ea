// Package cmd holds the factories the binaries share to build their infrastructure from flags.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/persistence/postgresql"
	"github.com/dukex/botrelay/pkg/persistence/sqlbase"
	"github.com/dukex/botrelay/pkg/persistence/sqlite"
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

const (
	providerPostgres = "postgresql"
	providerSQLite   = "sqlite"
)

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, retry persistence.RetryPolicy) (persistence.Persistence, error) {
	provider, dsn, err := parsePersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Opening persistence", "provider", provider)

	var store *sqlbase.Store

	switch provider {
	case providerPostgres:
		store, err = postgresql.NewPersistence(ctx, logger, dsn, retry)
	default:
		store, err = sqlite.NewPersistence(ctx, logger, dsn, retry)
	}

	if err != nil {
		return nil, err
	}

	return store, nil
}

// parsePersistenceProvider picks the driver from the URL scheme and returns the DSN it expects.
func parsePersistenceProvider(databaseURL string) (string, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return providerPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("%w: missing sqlite path", ErrUnsupportedDatabase)
		}

		return providerSQLite, path, nil
	case strings.HasPrefix(databaseURL, "file:"):
		return providerSQLite, databaseURL, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDatabase, databaseURL)
	}
}
