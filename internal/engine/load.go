package engine

import (
	"context"
	"fmt"

	"github.com/kmorehouse/taskmirror/internal/task"
)

// Load performs the initial cache-first load for a partition.
//
// The cached page, if any, is published immediately so the consumer has
// instant (possibly stale) data. The remote store is then confirmed at offset
// zero with the same filter, the fetched batch is upserted into the cache,
// and the cache is re-queried to publish the merged authoritative page. A
// remote failure is swallowed when the cache pre-fill produced data, and
// surfaced as the partition's error state when it did not.
//
// A load already in flight for the partition makes this a no-op.
func (e *Engine) Load(ctx context.Context, p Partition) error {
	if !e.tryBeginLoad(p) {
		return nil
	}
	defer e.endLoad(p)
	return e.loadLocked(ctx, p)
}

// Reload resets the partition's offset to zero and re-runs the full load
// sequence.
func (e *Engine) Reload(ctx context.Context, p Partition) error {
	if !e.tryBeginLoad(p) {
		return nil
	}
	defer e.endLoad(p)

	e.mu.Lock()
	e.parts[p].offset = 0
	e.mu.Unlock()

	return e.loadLocked(ctx, p)
}

// loadLocked runs the load sequence. The caller owns the partition's loading
// flag.
func (e *Engine) loadLocked(ctx context.Context, p Partition) error {
	filter := e.filter(p)

	cached, err := e.cache.Query(ctx, filter, e.cfg.PageSize, 0)
	if err != nil {
		// Cache unavailable: degrade to remote-only for this load.
		e.logger.Printf("Cache query failed for %s, continuing remote-only: %v", p, err)
		cached = nil
	}

	hadCache := len(cached) > 0
	if hadCache {
		e.mu.Lock()
		st := e.parts[p]
		st.tasks = cached
		st.offset = len(cached)
		st.hasMore = len(cached) == e.cfg.PageSize
		st.loaded = true
		st.err = nil
		e.mu.Unlock()
		e.publish()
	}

	fetched, _, err := e.remote.List(ctx, filter, e.cfg.PageSize, 0)
	if err != nil {
		if hadCache {
			// Stale data beats no data; keep showing the cache page.
			e.logger.Printf("Remote list failed for %s, keeping cached page: %v", p, err)
			return nil
		}
		err = fmt.Errorf("failed to load %s tasks: %w", p, err)
		e.recordError(p, err)
		return err
	}

	if err := e.cache.UpsertBatch(ctx, fetched); err != nil {
		e.logger.Printf("Cache upsert failed for %s: %v", p, err)
	}

	// Re-read from the cache so the published page reflects merged truth:
	// local edits not yet round-tripped plus whatever the remote returned.
	merged, err := e.cache.Query(ctx, filter, e.cfg.PageSize, 0)
	if err != nil {
		e.logger.Printf("Cache re-read failed for %s, publishing remote page: %v", p, err)
		merged = fetched
	}

	e.mu.Lock()
	st := e.parts[p]
	st.tasks = merged
	st.offset = len(merged)
	st.hasMore = len(merged) == e.cfg.PageSize
	st.loaded = true
	st.err = nil
	e.lastErr = nil
	e.mu.Unlock()
	e.publish()

	return nil
}

// LoadMore extends a partition's page when the consumer scrolls near its end.
//
// It fires only when afterTaskID sits within the configured distance of the
// end of the loaded page. The cache is tried first at the partition's current
// offset; when it yields data the page extends with no remote call. When the
// cache is exhausted the remote store is fetched at the same offset, the
// batch is upserted, and the has-more flag is taken from the remote response,
// which unlike the cache heuristic knows the true global count.
func (e *Engine) LoadMore(ctx context.Context, p Partition, afterTaskID string) error {
	e.mu.Lock()
	st := e.parts[p]
	if st.loading || !st.loaded || !st.hasMore {
		e.mu.Unlock()
		return nil
	}
	idx := st.indexOf(afterTaskID)
	if idx < 0 || len(st.tasks)-idx > e.cfg.LoadMoreThreshold {
		e.mu.Unlock()
		return nil
	}
	st.loading = true
	offset := st.offset
	hadMore := st.hasMore
	e.mu.Unlock()
	defer e.endLoad(p)

	filter := e.filter(p)

	cached, err := e.cache.Query(ctx, filter, e.cfg.PageSize, offset)
	if err != nil {
		e.logger.Printf("Cache page query failed for %s: %v", p, err)
		cached = nil
	}

	if len(cached) > 0 {
		e.appendPage(p, cached, len(cached), hadMore)
		return nil
	}

	fetched, hasMore, err := e.remote.List(ctx, filter, e.cfg.PageSize, offset)
	if err != nil {
		err = fmt.Errorf("failed to load more %s tasks: %w", p, err)
		e.recordError(p, err)
		return err
	}

	if err := e.cache.UpsertBatch(ctx, fetched); err != nil {
		e.logger.Printf("Cache upsert failed for %s: %v", p, err)
	}

	e.appendPage(p, fetched, len(fetched), hasMore)
	return nil
}

// appendPage appends a fetched batch to the in-memory page and advances the
// offset by the count returned.
func (e *Engine) appendPage(p Partition, batch []*task.Task, advance int, hasMore bool) {
	e.mu.Lock()
	st := e.parts[p]

	// Optimistic deletes shrink the partition under the cache's offsets,
	// so a new page can overlap the current tail.
	seen := make(map[string]struct{}, len(st.tasks))
	for _, t := range st.tasks {
		seen[t.ID] = struct{}{}
	}
	for _, t := range batch {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		st.tasks = append(st.tasks, t)
	}

	st.offset += advance
	st.hasMore = hasMore
	st.err = nil
	e.mu.Unlock()
	e.publish()
}
