// Package backfill implements the one-time bulk jobs that seed the cache.
//
// Both jobs are best-effort background work gated by persisted per-user
// completion flags: an aborted run leaves its flag unset so the job retries
// on next launch, and a completed run never repeats. Neither job touches the
// engine's in-memory state or surfaces errors to the user.
package backfill

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kmorehouse/taskmirror/internal/cache"
	"github.com/kmorehouse/taskmirror/internal/engine"
	"github.com/kmorehouse/taskmirror/internal/remote"
	"github.com/kmorehouse/taskmirror/internal/settings"
)

// DefaultBatchSize is the page size for the full backfill sweep. Large
// batches keep the sweep short; the cache upserts each batch in one
// transaction.
const DefaultBatchSize = 500

// Flags is the slice of the settings store the jobs need.
type Flags interface {
	Bool(userID, key string) bool
	SetBool(userID, key string, value bool) error
}

// Runner executes the one-time jobs for a user.
type Runner struct {
	cache     *cache.DB
	remote    engine.RemoteStore
	flags     Flags
	userID    string
	batchSize int
	logger    *log.Logger
}

// New creates a Runner. If logger is nil, a default stderr logger is used.
func New(db *cache.DB, store engine.RemoteStore, flags Flags, userID string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "[backfill] ", log.LstdFlags)
	}
	return &Runner{
		cache:     db,
		remote:    store,
		flags:     flags,
		userID:    userID,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// RunAll runs both jobs in order. Errors abort the failing job only.
func (r *Runner) RunAll(ctx context.Context) {
	if err := r.FullBackfill(ctx); err != nil {
		r.logger.Printf("Full backfill aborted, will retry next launch: %v", err)
	}
	if err := r.DueDateBackfill(ctx); err != nil {
		r.logger.Printf("Due-date backfill aborted, will retry next launch: %v", err)
	}
}

// FullBackfill pages through every partition from offset zero in large
// batches until a short batch, upserting each batch into the cache. On
// completion the per-user flag is set so the job never re-runs; any batch
// failure aborts without the flag.
func (r *Runner) FullBackfill(ctx context.Context) error {
	if r.flags.Bool(r.userID, settings.KeyFullBackfillComplete) {
		return nil
	}

	r.logger.Printf("Starting full backfill for user %s", r.userID)
	start := time.Now()
	total := 0

	for _, p := range engine.Partitions {
		// No creation-date floor: the backfill sweeps the entire
		// remote dataset, not just the default load window.
		filter := p.Filter(time.Time{})

		for offset := 0; ; {
			batch, _, err := r.remote.List(ctx, filter, r.batchSize, offset)
			if err != nil {
				return fmt.Errorf("failed to fetch %s batch at offset %d: %w", p, offset, err)
			}

			if err := r.cache.UpsertBatch(ctx, batch); err != nil {
				return fmt.Errorf("failed to cache %s batch at offset %d: %w", p, offset, err)
			}

			total += len(batch)
			offset += len(batch)

			if len(batch) < r.batchSize {
				break
			}
		}
	}

	if err := r.flags.SetBool(r.userID, settings.KeyFullBackfillComplete, true); err != nil {
		return fmt.Errorf("failed to persist backfill flag: %w", err)
	}

	r.logger.Printf("Full backfill complete: %d tasks in %v", total, time.Since(start).Round(time.Millisecond))
	return nil
}

// DueDateBackfill assigns a due date of end-of-day of CreatedAt to cached
// incomplete tasks that have none, patching the remote store task by task.
//
// This is a best-effort fixup, not an all-or-nothing migration: per-task
// failures are logged and do not block setting the completion flag once the
// pass finishes.
func (r *Runner) DueDateBackfill(ctx context.Context) error {
	if r.flags.Bool(r.userID, settings.KeyDueDateBackfillComplete) {
		return nil
	}

	tasks, err := r.cache.IncompleteWithoutDue(ctx)
	if err != nil {
		return fmt.Errorf("failed to query tasks without due dates: %w", err)
	}

	r.logger.Printf("Due-date backfill: %d tasks to patch", len(tasks))

	patched, failed := 0, 0
	for _, t := range tasks {
		due := endOfDay(t.CreatedAt)
		fields := remote.Fields{"due_at": due.UTC().Format(time.RFC3339)}

		updated, err := r.remote.Update(ctx, t.ID, fields)
		if err != nil {
			r.logger.Printf("Warning: failed to patch due date for %s: %v", t.ID, err)
			failed++
			continue
		}

		if err := r.cache.UpsertTask(ctx, updated); err != nil {
			r.logger.Printf("Warning: failed to cache patched task %s: %v", t.ID, err)
		}
		patched++
	}

	if err := r.flags.SetBool(r.userID, settings.KeyDueDateBackfillComplete, true); err != nil {
		return fmt.Errorf("failed to persist due-date backfill flag: %w", err)
	}

	r.logger.Printf("Due-date backfill complete: patched=%d failed=%d", patched, failed)
	return nil
}

// endOfDay returns 23:59:59 on the calendar day of t, in t's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

var _ Flags = (*settings.Store)(nil)
