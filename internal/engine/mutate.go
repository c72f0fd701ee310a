package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kmorehouse/taskmirror/internal/remote"
	"github.com/kmorehouse/taskmirror/internal/task"
)

// ToggleCompletion flips a task's completed state.
//
// The toggle is remote-confirmed: the task moves between the incomplete and
// completed lists only after the remote update succeeds, using the
// server-returned object so authoritative fields win. On failure the task
// stays where it is and the error is recorded; there is no automatic retry.
func (e *Engine) ToggleCompletion(ctx context.Context, id string) error {
	e.mu.Lock()
	current := e.findLocked(id)
	if current != nil {
		current = current.Clone()
	}
	e.mu.Unlock()

	if current == nil {
		return fmt.Errorf("task %s is not loaded", id)
	}

	fields := remote.Fields{"completed": !current.Completed}
	if !current.Completed {
		fields["completed_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		fields["completed_at"] = nil
	}

	updated, err := e.remote.Update(ctx, id, fields)
	if err != nil {
		err = fmt.Errorf("failed to toggle task %s: %w", id, err)
		source := PartitionIncomplete
		if current.Completed {
			source = PartitionCompleted
		}
		e.recordError(source, err)
		return err
	}

	if err := e.cache.UpsertTask(ctx, updated); err != nil {
		e.logger.Printf("Cache upsert failed after toggle of %s: %v", id, err)
	}

	target := PartitionIncomplete
	if updated.Completed {
		target = PartitionCompleted
	}

	e.mu.Lock()
	e.parts[PartitionIncomplete].remove(id)
	e.parts[PartitionCompleted].remove(id)
	st := e.parts[target]
	st.tasks = append(st.tasks, updated)
	task.SortForDisplay(st.tasks)
	e.lastErr = nil
	e.mu.Unlock()
	e.publish()

	return nil
}

// Create creates a task on the remote store and inserts the server-returned
// object at the head of the incomplete list.
//
// The create path is synchronous-confirmed, not optimistic: the request
// carries a locally-issued id, but the in-memory lists only ever hold the
// identity the server assigned.
func (e *Engine) Create(ctx context.Context, description string, dueAt *time.Time, metadata map[string]any) (*task.Task, error) {
	fields := remote.Fields{
		"client_id":   uuid.NewString(),
		"description": description,
		"source":      task.Manual.String(),
	}
	if dueAt != nil {
		fields["due_at"] = dueAt.UTC().Format(time.RFC3339)
	}
	if len(metadata) > 0 {
		fields["metadata"] = metadata
	}

	created, err := e.remote.Create(ctx, fields)
	if err != nil {
		err = fmt.Errorf("failed to create task: %w", err)
		e.recordError(PartitionIncomplete, err)
		return nil, err
	}

	if err := e.cache.UpsertTask(ctx, created); err != nil {
		e.logger.Printf("Cache upsert failed after create of %s: %v", created.ID, err)
	}

	e.mu.Lock()
	st := e.parts[PartitionIncomplete]
	st.tasks = append([]*task.Task{created}, st.tasks...)
	e.lastErr = nil
	e.mu.Unlock()
	e.publish()

	return created.Clone(), nil
}

// Edit applies a changed-fields update to a task.
//
// Remote-confirmed: the in-memory task is replaced in place, in whichever
// list currently holds it, only after the remote update succeeds. Only
// changed fields are sent so unrelated metadata such as tags survives via
// server-side merge.
func (e *Engine) Edit(ctx context.Context, id string, fields remote.Fields) (*task.Task, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	updated, err := e.remote.Update(ctx, id, fields)
	if err != nil {
		err = fmt.Errorf("failed to update task %s: %w", id, err)
		e.recordError(e.holdingPartition(id), err)
		return nil, err
	}

	if err := e.cache.UpsertTask(ctx, updated); err != nil {
		e.logger.Printf("Cache upsert failed after edit of %s: %v", id, err)
	}

	e.mu.Lock()
	for _, p := range Partitions {
		st := e.parts[p]
		if i := st.indexOf(id); i >= 0 {
			st.tasks[i] = updated
		}
	}
	e.lastErr = nil
	e.mu.Unlock()
	e.publish()

	return updated.Clone(), nil
}

// Delete soft-deletes a task, optimistic-local-first.
//
// The task is removed from the cache and the in-memory lists synchronously;
// the remote soft-delete runs in the background. A remote failure is logged
// but the local deletion is never rolled back, so a task the user just
// removed cannot resurrect while a slow call is outstanding.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.cache.SoftDeleteByID(ctx, id, e.cfg.Actor); err != nil {
		e.logger.Printf("Cache soft-delete failed for %s: %v", id, err)
	}

	e.mu.Lock()
	removed := e.parts[PartitionIncomplete].remove(id)
	if t := e.parts[PartitionCompleted].remove(id); removed == nil {
		removed = t
	}
	if removed != nil {
		del := e.parts[PartitionDeleted]
		if del.loaded && del.indexOf(id) < 0 {
			marked := removed.Clone()
			marked.Deleted = true
			del.tasks = append([]*task.Task{marked}, del.tasks...)
		}
	}
	e.mu.Unlock()
	e.publish()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// Detached from the caller's ctx: shutdown lets the call finish
		// or fail silently.
		if _, err := e.remote.SoftDelete(context.Background(), id, e.cfg.Actor); err != nil {
			e.logger.Printf("Remote soft-delete failed for %s (local delete kept): %v", id, err)
		}
	}()

	return nil
}

// DeleteBulk soft-deletes several tasks with the same optimistic semantics.
func (e *Engine) DeleteBulk(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := e.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// holdingPartition returns the partition whose page currently holds id,
// defaulting to incomplete when the task is not loaded anywhere.
func (e *Engine) holdingPartition(id string) Partition {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range Partitions {
		if e.parts[p].indexOf(id) >= 0 {
			return p
		}
	}
	return PartitionIncomplete
}

// findLocked looks a task up across the incomplete and completed pages.
// Caller holds e.mu.
func (e *Engine) findLocked(id string) *task.Task {
	for _, p := range []Partition{PartitionIncomplete, PartitionCompleted} {
		st := e.parts[p]
		if i := st.indexOf(id); i >= 0 {
			return st.tasks[i]
		}
	}
	return nil
}
