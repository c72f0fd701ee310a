package engine

import (
	"github.com/kmorehouse/taskmirror/internal/task"
)

// PartitionView is the published read-only view of one partition.
type PartitionView struct {
	Tasks   []*task.Task
	Loading bool
	Loaded  bool
	HasMore bool
	Err     error
}

// Snapshot is an immutable copy of the engine's published state. Task values
// are clones; consumers may hold or mutate them freely.
type Snapshot struct {
	Incomplete PartitionView
	Completed  PartitionView
	Deleted    PartitionView

	// LastErr is the most recent surfaced failure, nil once a subsequent
	// operation succeeds.
	LastErr error

	// ScoringInProgress mirrors the visibility service's in-progress flag.
	ScoringInProgress bool
}

// Snapshot returns the current published state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers a consumer for published snapshots. The channel is
// buffered; a consumer that falls behind misses intermediate snapshots but
// can always call Snapshot() for the current state.
func (e *Engine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

// publish fans the current state out to subscribers.
func (e *Engine) publish() {
	e.mu.Lock()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// snapshotLocked builds a Snapshot. Caller holds e.mu.
func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Incomplete:        e.partViewLocked(PartitionIncomplete),
		Completed:         e.partViewLocked(PartitionCompleted),
		Deleted:           e.partViewLocked(PartitionDeleted),
		LastErr:           e.lastErr,
		ScoringInProgress: e.vis.scoringInProgress,
	}
}

func (e *Engine) partViewLocked(p Partition) PartitionView {
	st := e.parts[p]

	tasks := make([]*task.Task, 0, len(st.tasks))
	for _, t := range st.tasks {
		// The visibility overlay hides unapproved AI tasks from the
		// incomplete page only; manual tasks are never filtered.
		if p == PartitionIncomplete && !e.vis.visible(t) {
			continue
		}
		tasks = append(tasks, t.Clone())
	}

	return PartitionView{
		Tasks:   tasks,
		Loading: st.loading,
		Loaded:  st.loaded,
		HasMore: st.hasMore,
		Err:     st.err,
	}
}
