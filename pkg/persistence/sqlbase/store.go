package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/botrelay/pkg/persistence"
)

// Store implements persistence.Persistence on top of database/sql for any Dialect.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	dialect   Dialect
	retry     persistence.RetryPolicy
	questions *QuestionRepository
	runs      *RunRepository
	events    *EventRepository
}

// Open connects to the database, verifies the connection and runs the dialect's migrations.
func Open(ctx context.Context, logger *slog.Logger, dialect Dialect, dsn string, retry persistence.RetryPolicy) (*Store, error) {
	database, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect.Name, err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect.Configure != nil {
		err = dialect.Configure(database)
		if err != nil {
			_ = database.Close()

			return nil, fmt.Errorf("failed to configure %s database: %w", dialect.Name, err)
		}
	}

	store := NewStore(logger, database, dialect, retry)

	migrationManager := NewMigrationManager(logger, database, dialect.Migrations, dialect.Rebind)

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.InfoContext(ctx, "Persistence initialized successfully", "dialect", dialect.Name)

	return store, nil
}

// NewStore wraps an already opened and migrated database.
func NewStore(logger *slog.Logger, db *sql.DB, dialect Dialect, retry persistence.RetryPolicy) *Store {
	logger = logger.With("component", dialect.Name+"_persistence")

	store := &Store{
		db:      db,
		logger:  logger,
		dialect: dialect,
		retry:   retry,
	}

	store.questions = &QuestionRepository{store: store}
	store.runs = &RunRepository{store: store}
	store.events = &EventRepository{store: store}

	return store
}

// DB exposes the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Questions() persistence.QuestionRepository {
	return s.questions
}

func (s *Store) Runs() persistence.RunRepository {
	return s.runs
}

func (s *Store) Events() persistence.EventRepository {
	return s.events
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(ctx context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// classify tags driver lock errors so the retry policy can recognise them.
func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}

	if s.dialect.IsLockBusy != nil && s.dialect.IsLockBusy(err) {
		return persistence.LockBusy(err)
	}

	return err
}

// exec runs a write statement under the retry policy and returns the affected row count.
func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64

	err := s.retry.Do(ctx, func() error {
		result, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
		if err != nil {
			return s.classify(err)
		}

		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		return nil
	})

	return affected, err
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, s.classify(err)
	}

	return rows, nil
}

func (s *Store) closeRows(ctx context.Context, rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
	}
}
