package engine

import (
	"context"
	"errors"

	"github.com/kmorehouse/taskmirror/internal/cache"
	"github.com/kmorehouse/taskmirror/internal/task"
	"github.com/kmorehouse/taskmirror/internal/visibility"
)

// visibilityState is the adopted overlay from the scoring process. Guarded by
// the engine mutex.
type visibilityState struct {
	allowlist           map[string]struct{}
	hasCompletedScoring bool
	scoringInProgress   bool
}

// visible reports whether the overlay lets a task through. Manual tasks are
// never filtered; AI tasks are hidden only once scoring has completed and the
// id is absent from the allowlist.
func (v *visibilityState) visible(t *task.Task) bool {
	if !t.Source.IsAI() {
		return true
	}
	if !v.hasCompletedScoring {
		return true
	}
	_, ok := v.allowlist[t.ID]
	return ok
}

// ApplyVisibility adopts a new allowlist from the scoring process.
//
// Allowlisted ids absent from the loaded incomplete page, typically tasks
// older than the default load window, are fetched individually from the cache
// and appended so an approved task is never invisible merely because it fell
// outside the first page.
func (e *Engine) ApplyVisibility(ctx context.Context, u visibility.Update) {
	set := u.IDSet()

	e.mu.Lock()
	e.vis.allowlist = set
	e.vis.hasCompletedScoring = u.HasCompletedScoring
	e.vis.scoringInProgress = u.IsScoringInProgress

	st := e.parts[PartitionIncomplete]
	var missing []string
	for _, id := range u.VisibleAITaskIDs {
		if st.indexOf(id) < 0 {
			missing = append(missing, id)
		}
	}
	e.mu.Unlock()

	var found []*task.Task
	for _, id := range missing {
		t, err := e.cache.GetByID(ctx, id)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			e.logger.Printf("Cache lookup failed for allowlisted task %s: %v", id, err)
			continue
		}
		if t.Completed || t.Deleted {
			continue
		}
		found = append(found, t)
	}

	e.mu.Lock()
	if len(found) > 0 {
		st := e.parts[PartitionIncomplete]
		for _, t := range found {
			if st.indexOf(t.ID) < 0 {
				st.tasks = append(st.tasks, t)
			}
		}
		task.SortForDisplay(st.tasks)
	}
	e.mu.Unlock()
	e.publish()
}

// RunVisibility applies updates from the subscription channel until it closes
// or ctx is cancelled.
func (e *Engine) RunVisibility(ctx context.Context, updates <-chan visibility.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			e.ApplyVisibility(ctx, u)
		}
	}
}
