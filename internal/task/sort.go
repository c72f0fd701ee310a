package task

import "sort"

// DisplayLess implements the fixed display ordering used everywhere a page of
// tasks is shown: due date ascending with unset due dates last, manual-source
// before AI-source on ties, then newest-created first.
//
// The cache's SQL ORDER BY mirrors this exactly so cache-derived pages and
// remote-derived pages are comparable.
func DisplayLess(a, b *Task) bool {
	switch {
	case a.DueAt != nil && b.DueAt == nil:
		return true
	case a.DueAt == nil && b.DueAt != nil:
		return false
	case a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt):
		return a.DueAt.Before(*b.DueAt)
	}
	if a.Source.IsAI() != b.Source.IsAI() {
		return !a.Source.IsAI()
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// SortForDisplay sorts tasks in place by the display ordering.
func SortForDisplay(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return DisplayLess(tasks[i], tasks[j])
	})
}
