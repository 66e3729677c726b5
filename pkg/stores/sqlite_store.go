package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore keeps the run history in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	// Path is the database file, or MemoryPath.
	Path string

	// BusyTimeout is how long a writer waits for a lock.
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Open creates, initializes and migrates the store at path, creating parent
// directories as needed.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Init opens the database connection. File databases use WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if s.path != MemoryPath {
		dsn = "file:" + dsn + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One writer; an in-memory database also exists only on its connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// CreateRun inserts a run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	pillars, err := json.Marshal(nonNil(run.Pillars))
	if err != nil {
		return fmt.Errorf("failed to encode pillars: %w", err)
	}

	query := `
		INSERT INTO runs (id, profile, status, reason, pillars, succeeded, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.Profile,
		run.Status,
		run.Reason,
		string(pillars),
		run.Succeeded,
		run.Failed,
		run.StartedAt.UTC(),
		utcPtr(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id, status, reason string, succeeded, failed int, finishedAt time.Time) error {
	query := `
		UPDATE runs
		SET status = ?, reason = ?, succeeded = ?, failed = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, status, reason, succeeded, failed, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return expectRow(result, id)
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, profile, status, reason, pillars, succeeded, failed, started_at, finished_at
		FROM runs
		WHERE id = ?
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, profile, status, reason, pillars, succeeded, failed, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// DeleteRun deletes a run together with its outcomes and events.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return expectRow(result, id)
}

// AppendOutcome adds an entry to a run's outcome log and sets entry.ID.
func (s *SQLiteStore) AppendOutcome(ctx context.Context, entry *OutcomeEntry) error {
	query := `
		INSERT INTO outcomes (run_id, seq, unit, kind, pillar, status, diagnostic, exit_code, duration_ms, decision, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		entry.RunID,
		entry.Seq,
		entry.Unit,
		entry.Kind,
		entry.Pillar,
		entry.Status,
		entry.Diagnostic,
		entry.ExitCode,
		entry.Duration.Milliseconds(),
		entry.Decision,
		entry.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}
	entry.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get outcome id: %w", err)
	}
	return nil
}

// SetDecision stores the policy decision on the latest outcome of unit.
func (s *SQLiteStore) SetDecision(ctx context.Context, runID, unit, decision string) error {
	query := `
		UPDATE outcomes SET decision = ?
		WHERE id = (SELECT id FROM outcomes WHERE run_id = ? AND unit = ? ORDER BY seq DESC LIMIT 1)
	`
	result, err := s.db.ExecContext(ctx, query, decision, runID, unit)
	if err != nil {
		return fmt.Errorf("failed to set decision: %w", err)
	}
	return expectRow(result, runID+"/"+unit)
}

// ListOutcomes returns a run's outcome log in recording order.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]*OutcomeEntry, error) {
	query := `
		SELECT id, run_id, seq, unit, kind, pillar, status, diagnostic, exit_code, duration_ms, decision, recorded_at
		FROM outcomes
		WHERE run_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	entries := []*OutcomeEntry{}
	for rows.Next() {
		entry := &OutcomeEntry{}
		var durationMS int64
		err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.Seq,
			&entry.Unit,
			&entry.Kind,
			&entry.Pillar,
			&entry.Status,
			&entry.Diagnostic,
			&entry.ExitCode,
			&durationMS,
			&entry.Decision,
			&entry.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return entries, nil
}

// AppendEvent stores an event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *EventEntry) error {
	query := `
		INSERT INTO events (id, run_id, seq, type, level, unit, pillar, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.RunID,
		event.Seq,
		event.Type,
		event.Level,
		event.Unit,
		event.Pillar,
		event.Message,
		event.Data,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns a run's events in emission order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]*EventEntry, error) {
	query := `
		SELECT id, run_id, seq, type, level, unit, pillar, message, data, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*EventEntry{}
	for rows.Next() {
		event := &EventEntry{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Seq,
			&event.Type,
			&event.Level,
			&event.Unit,
			&event.Pillar,
			&event.Message,
			&event.Data,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	run := &RunRecord{}
	var pillars string
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Profile,
		&run.Status,
		&run.Reason,
		&pillars,
		&run.Succeeded,
		&run.Failed,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pillars), &run.Pillars); err != nil {
		return nil, fmt.Errorf("failed to decode pillars of run %s: %w", run.ID, err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func expectRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
