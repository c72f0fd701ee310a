// Package cache provides the embedded SQLite store holding a durable copy of
// every task the client has seen.
//
// The database runs in embedded mode with WAL for concurrency support. The
// engine never prunes it: the cache accumulates a superset of everything
// fetched from the remote store, and is queried with the same filter semantics
// (completion/deletion predicates, creation-date floor, display ordering) so
// cache-derived pages and remote-derived pages are comparable.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kmorehouse/taskmirror/internal/task"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned by GetByID when no task exists with the given id.
var ErrNotFound = errors.New("task not found")

// timeFormat is the stored timestamp encoding. Timestamps are compared as
// TEXT by ORDER BY and the created_at floor, so the format must be
// fixed-width: zero-padded nanoseconds keep lexicographic order identical to
// chronological order, which RFC3339Nano's trimmed fractions do not.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Filter selects one partition of the task space. The same filter shape is
// sent to the remote store so both sides answer the same question.
type Filter struct {
	// Completed selects completed vs incomplete tasks.
	Completed bool
	// Deleted selects soft-deleted tasks. When false, soft-deleted tasks
	// are excluded regardless of completion state.
	Deleted bool
	// CreatedAfter is the creation-date floor. Zero means no floor.
	CreatedAfter time.Time
}

// DB wraps the SQLite connection for the task cache.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a cache database at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads. The
// caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the cache schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT '',
		metadata TEXT,  -- JSON object
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT,
		due_at TEXT,
		deleted_by TEXT
	);

	-- Partition queries filter on (completed, deleted, created_at)
	CREATE INDEX IF NOT EXISTS idx_tasks_partition
	    ON tasks(completed, deleted, created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_source ON tasks(source);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// UpsertTask inserts or updates a task, last-writer-wins on all fields.
func (db *DB) UpsertTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	INSERT INTO tasks (
		id, description, completed, deleted, source, priority,
		metadata, created_at, updated_at, completed_at, due_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		description = excluded.description,
		completed = excluded.completed,
		-- Soft-delete is terminal: a slower remote page must never
		-- resurrect a task deleted locally.
		deleted = MAX(tasks.deleted, excluded.deleted),
		source = excluded.source,
		priority = excluded.priority,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at,
		completed_at = excluded.completed_at,
		due_at = excluded.due_at
	`

	_, err = db.conn.ExecContext(ctx, query,
		t.ID,
		t.Description,
		boolToInt(t.Completed),
		boolToInt(t.Deleted),
		t.Source.String(),
		string(t.Priority),
		string(metaJSON),
		t.CreatedAt.UTC().Format(timeFormat),
		t.UpdatedAt.UTC().Format(timeFormat),
		timeToNullString(t.CompletedAt),
		timeToNullString(t.DueAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
	}

	return nil
}

// UpsertBatch upserts a batch of tasks in a single transaction. An invalid
// task fails the whole batch; fetched pages are validated upstream.
func (db *DB) UpsertBatch(ctx context.Context, tasks []*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO tasks (
		id, description, completed, deleted, source, priority,
		metadata, created_at, updated_at, completed_at, due_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		description = excluded.description,
		completed = excluded.completed,
		-- Soft-delete is terminal: a slower remote page must never
		-- resurrect a task deleted locally.
		deleted = MAX(tasks.deleted, excluded.deleted),
		source = excluded.source,
		priority = excluded.priority,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at,
		completed_at = excluded.completed_at,
		due_at = excluded.due_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid task %s: %w", t.ID, err)
		}

		metaJSON, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", t.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			t.ID,
			t.Description,
			boolToInt(t.Completed),
			boolToInt(t.Deleted),
			t.Source.String(),
			string(t.Priority),
			string(metaJSON),
			t.CreatedAt.UTC().Format(timeFormat),
			t.UpdatedAt.UTC().Format(timeFormat),
			timeToNullString(t.CompletedAt),
			timeToNullString(t.DueAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

// Query returns one page of the partition selected by filter, in display
// order: due date ascending with unset last, manual-source before AI-source,
// then newest-created first. The ordering matches task.DisplayLess.
func (db *DB) Query(ctx context.Context, filter Filter, limit, offset int) ([]*task.Task, error) {
	conditions := []string{"deleted = ?"}
	args := []any{boolToInt(filter.Deleted)}

	// Soft-deleted tasks belong only to the deleted partition regardless
	// of completion state.
	if !filter.Deleted {
		conditions = append(conditions, "completed = ?")
		args = append(args, boolToInt(filter.Completed))
	}

	if !filter.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC().Format(timeFormat))
	}

	query := `
	SELECT id, description, completed, deleted, source, priority,
	       metadata, created_at, updated_at, completed_at, due_at
	FROM tasks
	WHERE ` + strings.Join(conditions, " AND ") + `
	ORDER BY due_at IS NULL ASC, due_at ASC,
	         CASE WHEN source = 'manual' THEN 0 ELSE 1 END ASC,
	         created_at DESC
	`

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// GetByID retrieves a single task by id. Returns ErrNotFound if absent.
func (db *DB) GetByID(ctx context.Context, id string) (*task.Task, error) {
	query := `
	SELECT id, description, completed, deleted, source, priority,
	       metadata, created_at, updated_at, completed_at, due_at
	FROM tasks
	WHERE id = ?
	`

	row := db.conn.QueryRowContext(ctx, query, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// SoftDeleteByID marks a task deleted in place, recording the actor. The row
// is kept so filtered requeries suppress it without a remote round trip.
// Returns nil if the task doesn't exist (idempotent).
func (db *DB) SoftDeleteByID(ctx context.Context, id, actor string) error {
	query := `
	UPDATE tasks
	SET deleted = 1, deleted_by = ?, updated_at = ?
	WHERE id = ?
	`
	_, err := db.conn.ExecContext(ctx, query, actor, time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete task %s: %w", id, err)
	}
	return nil
}

// CountTasks returns the total number of cached tasks.
func (db *DB) CountTasks(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// IncompleteWithoutDue returns cached incomplete, non-deleted tasks that have
// no due date. Used by the due-date backfill job.
func (db *DB) IncompleteWithoutDue(ctx context.Context) ([]*task.Task, error) {
	query := `
	SELECT id, description, completed, deleted, source, priority,
	       metadata, created_at, updated_at, completed_at, due_at
	FROM tasks
	WHERE completed = 0 AND deleted = 0 AND due_at IS NULL
	ORDER BY created_at ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks without due dates: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task

	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func scanTask(scan func(...any) error) (*task.Task, error) {
	var t task.Task
	var completed, deleted int
	var source, priority, createdAt, updatedAt string
	var metaJSON, completedAt, dueAt sql.NullString

	err := scan(
		&t.ID,
		&t.Description,
		&completed,
		&deleted,
		&source,
		&priority,
		&metaJSON,
		&createdAt,
		&updatedAt,
		&completedAt,
		&dueAt,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed != 0
	t.Deleted = deleted != 0

	src, err := task.ParseSource(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source for %s: %w", t.ID, err)
	}
	t.Source = src
	t.Priority = task.Priority(priority)

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	t.CompletedAt = nullStringToTime(completedAt)
	t.DueAt = nullStringToTime(dueAt)

	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", t.ID, err)
		}
	}

	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
