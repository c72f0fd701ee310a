package engine

import (
	"context"
	"time"

	"github.com/kmorehouse/taskmirror/internal/task"
)

// RunRefresh runs the periodic background refresh until ctx is cancelled or
// the engine is stopped. Call it from its own goroutine.
func (e *Engine) RunRefresh(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce re-confirms every previously loaded partition against the
// remote store at offset zero.
//
// It runs only while the consuming view is active and no load is in flight
// for any partition. Each partition repeats the remote-fetch, cache-upsert,
// cache-reread sequence, and republishes only when the reread page differs
// from the held one, avoiding UI churn when nothing changed. Failures are
// logged and never clear already-displayed data.
func (e *Engine) RefreshOnce(ctx context.Context) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	for _, p := range Partitions {
		if e.parts[p].loading {
			e.mu.Unlock()
			return
		}
	}
	var targets []Partition
	for _, p := range Partitions {
		if e.parts[p].loaded {
			targets = append(targets, p)
		}
	}
	e.mu.Unlock()

	for _, p := range targets {
		if err := e.refreshPartition(ctx, p); err != nil {
			e.logger.Printf("Refresh failed for %s: %v", p, err)
		}
	}
}

func (e *Engine) refreshPartition(ctx context.Context, p Partition) error {
	if !e.tryBeginLoad(p) {
		return nil
	}
	defer e.endLoad(p)

	filter := e.filter(p)

	fetched, _, err := e.remote.List(ctx, filter, e.cfg.PageSize, 0)
	if err != nil {
		return err
	}

	if err := e.cache.UpsertBatch(ctx, fetched); err != nil {
		return err
	}

	merged, err := e.cache.Query(ctx, filter, e.cfg.PageSize, 0)
	if err != nil {
		return err
	}

	e.mu.Lock()
	st := e.parts[p]
	// A successful confirm also retires any error a previous failed load or
	// mutation left on the partition.
	if task.ListsEqual(st.tasks, merged) && st.err == nil {
		e.mu.Unlock()
		return nil
	}
	st.tasks = merged
	st.offset = len(merged)
	st.hasMore = len(merged) == e.cfg.PageSize
	st.err = nil
	e.mu.Unlock()
	e.publish()

	return nil
}
