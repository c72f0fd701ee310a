package engine

import (
	"time"

	"github.com/kmorehouse/taskmirror/internal/cache"
	"github.com/kmorehouse/taskmirror/internal/task"
)

// Partition identifies one of the three independently paginated task subsets.
type Partition int

const (
	// PartitionIncomplete holds tasks that are neither completed nor deleted.
	PartitionIncomplete Partition = iota
	// PartitionCompleted holds completed, non-deleted tasks.
	PartitionCompleted
	// PartitionDeleted holds soft-deleted tasks.
	PartitionDeleted
)

// Partitions lists all partitions in display order.
var Partitions = []Partition{PartitionIncomplete, PartitionCompleted, PartitionDeleted}

// String returns a human-readable partition name.
func (p Partition) String() string {
	switch p {
	case PartitionIncomplete:
		return "incomplete"
	case PartitionCompleted:
		return "completed"
	case PartitionDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Filter returns the store filter for this partition with the given
// creation-date floor. The identical filter is used against the cache and the
// remote store so both answer the same question.
func (p Partition) Filter(createdAfter time.Time) cache.Filter {
	switch p {
	case PartitionCompleted:
		return cache.Filter{Completed: true, CreatedAfter: createdAfter}
	case PartitionDeleted:
		return cache.Filter{Deleted: true, CreatedAfter: createdAfter}
	default:
		return cache.Filter{CreatedAfter: createdAfter}
	}
}

// partitionState is the pagination state machine for one partition. All
// fields are guarded by the engine mutex.
type partitionState struct {
	tasks []*task.Task

	// offset is the next cache/remote offset to page from. It only moves
	// forward while paging; a full reload resets it to zero.
	offset  int
	hasMore bool

	// loaded flips true after the first successful load and never back.
	loaded bool
	// loading is the per-partition re-entrancy guard for load, loadMore,
	// and refresh.
	loading bool

	err error
}

// indexOf returns the position of id in the partition page, or -1.
func (st *partitionState) indexOf(id string) int {
	for i, t := range st.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// remove deletes id from the page, returning the removed task or nil.
func (st *partitionState) remove(id string) *task.Task {
	i := st.indexOf(id)
	if i < 0 {
		return nil
	}
	removed := st.tasks[i]
	st.tasks = append(st.tasks[:i], st.tasks[i+1:]...)
	return removed
}
