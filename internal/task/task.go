// Package task defines the task data model shared by the cache, the remote
// store client, and the synchronization engine.
package task

import (
	"fmt"
	"reflect"
	"time"
)

// Task is the unit of synchronization. Fields are flat with last-write-wins
// semantics: every upsert replaces all columns, and the remote store is the
// authority for anything it returns.
type Task struct {
	// ID is opaque and server-assigned. Tasks created locally carry a
	// provisional uuid until the create call resolves.
	ID string `json:"id"`

	Description string `json:"description"`

	Completed bool `json:"completed"`
	Deleted   bool `json:"deleted"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`

	Source   Source   `json:"source"`
	Priority Priority `json:"priority,omitempty"`

	// Metadata is an opaque structured payload (tags, confidence,
	// manual-edit flag). The engine merges rather than overwrites it.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks that the Task has the fields every consumer relies on.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Description == "" {
		return fmt.Errorf("description is required")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if !t.Source.Valid() {
		return fmt.Errorf("invalid source %q", t.Source)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Source.Kind == "" {
		t.Source = Source{Kind: SourceManual}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// UpdateTimestamp sets UpdatedAt to current time.
func (t *Task) UpdateTimestamp() {
	t.UpdatedAt = time.Now().UTC()
}

// Equal reports value equality across all fields, including metadata.
// The refresh loop uses this to skip republishing unchanged pages.
func (t *Task) Equal(other *Task) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.ID != other.ID ||
		t.Description != other.Description ||
		t.Completed != other.Completed ||
		t.Deleted != other.Deleted ||
		t.Source != other.Source ||
		t.Priority != other.Priority {
		return false
	}
	if !t.CreatedAt.Equal(other.CreatedAt) || !t.UpdatedAt.Equal(other.UpdatedAt) {
		return false
	}
	if !timePtrEqual(t.CompletedAt, other.CompletedAt) || !timePtrEqual(t.DueAt, other.DueAt) {
		return false
	}
	return reflect.DeepEqual(normalizeMeta(t.Metadata), normalizeMeta(other.Metadata))
}

// Clone returns a deep copy. Published snapshots hand out clones so consumers
// can never mutate engine state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	if t.DueAt != nil {
		v := *t.DueAt
		cp.DueAt = &v
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// ListsEqual reports value equality of two task slices in order.
func ListsEqual(a, b []*Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func normalizeMeta(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}
