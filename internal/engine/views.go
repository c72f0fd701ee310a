package engine

import (
	"time"

	"github.com/kmorehouse/taskmirror/internal/task"
)

// Counts summarizes the published state for badge-style consumers.
type Counts struct {
	Overdue    int
	DueToday   int
	NoDueDate  int
	Incomplete int
	Completed  int
	Deleted    int
}

// Overdue returns incomplete tasks whose due date fell before the start of
// today, in display order.
func (s Snapshot) Overdue() []*task.Task {
	today := startOfDay(time.Now())
	var out []*task.Task
	for _, t := range s.Incomplete.Tasks {
		if t.DueAt != nil && t.DueAt.Before(today) {
			out = append(out, t)
		}
	}
	return out
}

// DueToday returns incomplete tasks due on the current calendar day, in
// display order.
func (s Snapshot) DueToday() []*task.Task {
	today := startOfDay(time.Now())
	tomorrow := today.AddDate(0, 0, 1)
	var out []*task.Task
	for _, t := range s.Incomplete.Tasks {
		if t.DueAt != nil && !t.DueAt.Before(today) && t.DueAt.Before(tomorrow) {
			out = append(out, t)
		}
	}
	return out
}

// NoDueDate returns incomplete tasks without a due date, in display order.
func (s Snapshot) NoDueDate() []*task.Task {
	var out []*task.Task
	for _, t := range s.Incomplete.Tasks {
		if t.DueAt == nil {
			out = append(out, t)
		}
	}
	return out
}

// Counts returns summary counts over the published lists.
func (s Snapshot) Counts() Counts {
	return Counts{
		Overdue:    len(s.Overdue()),
		DueToday:   len(s.DueToday()),
		NoDueDate:  len(s.NoDueDate()),
		Incomplete: len(s.Incomplete.Tasks),
		Completed:  len(s.Completed.Tasks),
		Deleted:    len(s.Deleted.Tasks),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
