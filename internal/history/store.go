package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"screencap/internal/config"
	"screencap/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const recordColumns = `id, dir, total_seconds, segment_count, segment_seconds, status,
    started_at, stopped_at, artifact_path, artifact_seconds, error_message, updated_at`

// Store manages session history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database under the state dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the database at an explicit path.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Begin inserts a session in the recording state.
func (s *Store) Begin(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return services.Wrap(services.ErrValidation, "history", "begin", "session id required", nil)
	}
	started := rec.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	now := formatTime(time.Now())
	_, err := s.execWithRetry(ctx,
		`INSERT INTO sessions (id, dir, total_seconds, segment_count, segment_seconds, status, started_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Dir, rec.TotalSeconds, rec.SegmentCount, rec.SegmentSeconds,
		StatusRecording, formatTime(started), now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// MarkStopped records that the encoder was signalled.
func (s *Store) MarkStopped(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, `status = ?, stopped_at = ?`, StatusStopped, formatTime(at))
}

// MarkCompleted records a successful join.
func (s *Store) MarkCompleted(ctx context.Context, id, artifactPath string, artifactSeconds float64) error {
	return s.update(ctx, id, `status = ?, artifact_path = ?, artifact_seconds = ?, error_message = NULL`,
		StatusCompleted, artifactPath, nullableFloat(artifactSeconds))
}

// MarkEmpty records that no segments were available to join.
func (s *Store) MarkEmpty(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, `status = ?, error_message = ?`, StatusEmpty, nullableString(reason))
}

// MarkFailed records a failure with its message.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(ctx, id, `status = ?, error_message = ?`, StatusFailed, msg)
}

func (s *Store) update(ctx context.Context, id, assignments string, args ...any) error {
	args = append(args, formatTime(time.Now()), id)
	res, err := s.execWithRetry(ctx, `UPDATE sessions SET `+assignments+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "history", "update", "session "+id, nil)
	}
	return nil
}

// Get returns the session whose id equals or starts with idOrPrefix. A prefix
// matching more than one session is a validation error.
func (s *Store) Get(ctx context.Context, idOrPrefix string) (*Record, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, services.Wrap(services.ErrValidation, "history", "get", "session id required", nil)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM sessions WHERE id = ?`, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 1 {
		return &records[0], nil
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM sessions WHERE id LIKE ? ORDER BY started_at DESC LIMIT 2`,
		stripLikeWildcards(idOrPrefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if records, err = scanRecords(rows); err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, services.Wrap(services.ErrNotFound, "history", "get", "session "+idOrPrefix, nil)
	case 1:
		return &records[0], nil
	default:
		return nil, services.Wrap(services.ErrValidation, "history", "get", "ambiguous session prefix "+idOrPrefix, nil)
	}
}

// List returns the newest sessions first. limit <= 0 returns every row.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM sessions`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return scanRecords(rows)
}

// Remove deletes a session row. The recording directory is left alone.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "history", "remove", "session "+id, nil)
	}
	return nil
}

// StatusCounts returns the number of sessions per status.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}
