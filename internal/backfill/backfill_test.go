package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kmorehouse/taskmirror/internal/cache"
	"github.com/kmorehouse/taskmirror/internal/remote"
	"github.com/kmorehouse/taskmirror/internal/settings"
	"github.com/kmorehouse/taskmirror/internal/task"
)

// memFlags is an in-memory Flags implementation.
type memFlags struct {
	mu sync.Mutex
	m  map[string]bool
}

func newMemFlags() *memFlags {
	return &memFlags{m: make(map[string]bool)}
}

func (f *memFlags) Bool(userID, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[userID+"."+key]
}

func (f *memFlags) SetBool(userID, key string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[userID+"."+key] = value
	return nil
}

// pagedRemote serves a fixed dataset in offset/limit pages and can fail a
// specific List call or specific Update ids.
type pagedRemote struct {
	mu    sync.Mutex
	tasks []*task.Task

	listCalls   int
	failOnCall  int // 1-based; 0 disables
	updateFails map[string]bool
	updated     map[string]remote.Fields
}

func (p *pagedRemote) List(ctx context.Context, filter cache.Filter, limit, offset int) ([]*task.Task, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listCalls++
	if p.failOnCall != 0 && p.listCalls == p.failOnCall {
		return nil, false, errors.New("injected list failure")
	}

	var matched []*task.Task
	for _, t := range p.tasks {
		if t.Deleted != filter.Deleted {
			continue
		}
		if !filter.Deleted && t.Completed != filter.Completed {
			continue
		}
		matched = append(matched, t.Clone())
	}

	if offset >= len(matched) {
		return nil, false, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], end < len(matched), nil
}

func (p *pagedRemote) Create(ctx context.Context, fields remote.Fields) (*task.Task, error) {
	return nil, errors.New("not used by backfill")
}

func (p *pagedRemote) Update(ctx context.Context, id string, fields remote.Fields) (*task.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.updateFails[id] {
		return nil, errors.New("injected update failure")
	}
	for _, t := range p.tasks {
		if t.ID != id {
			continue
		}
		cp := t.Clone()
		if raw, ok := fields["due_at"].(string); ok {
			if due, err := time.Parse(time.RFC3339, raw); err == nil {
				cp.DueAt = &due
			}
		}
		cp.UpdatedAt = time.Now().UTC()
		if p.updated == nil {
			p.updated = make(map[string]remote.Fields)
		}
		p.updated[id] = fields
		return cp, nil
	}
	return nil, fmt.Errorf("no such task %s", id)
}

func (p *pagedRemote) SoftDelete(ctx context.Context, id, actor string) (*task.Task, error) {
	return nil, errors.New("not used by backfill")
}

func testCache(t *testing.T) *cache.DB {
	t.Helper()

	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mkTask(id string, completed, deleted bool) *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:          id,
		Description: "task " + id,
		Source:      task.Manual,
		Completed:   completed,
		Deleted:     deleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newRunner(t *testing.T, db *cache.DB, rem *pagedRemote, flags Flags, batchSize int) *Runner {
	t.Helper()

	r := New(db, rem, flags, "user-1", log.New(io.Discard, "", 0))
	r.batchSize = batchSize
	return r
}

func TestFullBackfill_SweepsAllPartitions(t *testing.T) {
	rem := &pagedRemote{}
	for i := 0; i < 12; i++ {
		rem.tasks = append(rem.tasks, mkTask(fmt.Sprintf("open-%d", i), false, false))
	}
	for i := 0; i < 3; i++ {
		rem.tasks = append(rem.tasks, mkTask(fmt.Sprintf("done-%d", i), true, false))
	}
	rem.tasks = append(rem.tasks, mkTask("gone-0", false, true))

	db := testCache(t)
	flags := newMemFlags()
	r := newRunner(t, db, rem, flags, 5)

	if err := r.FullBackfill(context.Background()); err != nil {
		t.Fatalf("FullBackfill() failed: %v", err)
	}

	n, err := db.CountTasks(context.Background())
	if err != nil {
		t.Fatalf("CountTasks failed: %v", err)
	}
	if n != 16 {
		t.Errorf("cached %d tasks, want 16", n)
	}
	if !flags.Bool("user-1", settings.KeyFullBackfillComplete) {
		t.Error("completion flag not set")
	}
}

func TestFullBackfill_SkipsWhenFlagSet(t *testing.T) {
	rem := &pagedRemote{tasks: []*task.Task{mkTask("t1", false, false)}}
	flags := newMemFlags()
	_ = flags.SetBool("user-1", settings.KeyFullBackfillComplete, true)

	r := newRunner(t, testCache(t), rem, flags, 5)
	if err := r.FullBackfill(context.Background()); err != nil {
		t.Fatalf("FullBackfill() failed: %v", err)
	}
	if rem.listCalls != 0 {
		t.Errorf("backfill hit the remote %d times despite the flag", rem.listCalls)
	}
}

func TestFullBackfill_RunsOnceAcrossLaunches(t *testing.T) {
	rem := &pagedRemote{}
	for i := 0; i < 7; i++ {
		rem.tasks = append(rem.tasks, mkTask(fmt.Sprintf("t-%d", i), false, false))
	}

	db := testCache(t)
	flags := newMemFlags()

	if err := newRunner(t, db, rem, flags, 5).FullBackfill(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	before := rem.listCalls
	// Second launch: a fresh runner over the same persisted flags.
	if err := newRunner(t, db, rem, flags, 5).FullBackfill(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if rem.listCalls != before {
		t.Errorf("second launch re-ran the backfill: %d extra calls", rem.listCalls-before)
	}
}

func TestFullBackfill_AbortLeavesFlagUnset(t *testing.T) {
	rem := &pagedRemote{failOnCall: 2}
	for i := 0; i < 12; i++ {
		rem.tasks = append(rem.tasks, mkTask(fmt.Sprintf("t-%d", i), false, false))
	}

	db := testCache(t)
	flags := newMemFlags()
	r := newRunner(t, db, rem, flags, 5)

	if err := r.FullBackfill(context.Background()); err == nil {
		t.Fatal("FullBackfill() swallowed a batch failure")
	}
	if flags.Bool("user-1", settings.KeyFullBackfillComplete) {
		t.Error("completion flag set after an aborted run")
	}

	// The partial sweep stays cached; the retry starts over from offset 0
	// and the upserts are idempotent.
	n, err := db.CountTasks(context.Background())
	if err != nil {
		t.Fatalf("CountTasks failed: %v", err)
	}
	if n != 5 {
		t.Errorf("partial run cached %d tasks, want 5", n)
	}

	rem.failOnCall = 0
	if err := r.FullBackfill(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !flags.Bool("user-1", settings.KeyFullBackfillComplete) {
		t.Error("completion flag not set after a successful retry")
	}
}

func TestDueDateBackfill_PatchesEndOfDay(t *testing.T) {
	created := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)
	noDue := mkTask("no-due", false, false)
	noDue.CreatedAt = created
	due := created.Add(time.Hour)
	withDue := mkTask("with-due", false, false)
	withDue.DueAt = &due

	rem := &pagedRemote{tasks: []*task.Task{noDue, withDue}}
	db := testCache(t)
	ctx := context.Background()
	if err := db.UpsertBatch(ctx, []*task.Task{noDue, withDue}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	flags := newMemFlags()
	r := newRunner(t, db, rem, flags, 5)

	if err := r.DueDateBackfill(ctx); err != nil {
		t.Fatalf("DueDateBackfill() failed: %v", err)
	}

	if _, ok := rem.updated["with-due"]; ok {
		t.Error("task that already had a due date was patched")
	}

	fields, ok := rem.updated["no-due"]
	if !ok {
		t.Fatal("task without a due date was not patched")
	}
	want := time.Date(2026, 8, 10, 23, 59, 59, 0, time.UTC).Format(time.RFC3339)
	if fields["due_at"] != want {
		t.Errorf("patched due_at = %v, want %s", fields["due_at"], want)
	}

	got, err := db.GetByID(ctx, "no-due")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.DueAt == nil {
		t.Error("patched due date not written back to the cache")
	}

	if !flags.Bool("user-1", settings.KeyDueDateBackfillComplete) {
		t.Error("completion flag not set")
	}
}

func TestDueDateBackfill_ToleratesPerTaskFailures(t *testing.T) {
	a := mkTask("a", false, false)
	b := mkTask("b", false, false)

	rem := &pagedRemote{
		tasks:       []*task.Task{a, b},
		updateFails: map[string]bool{"a": true},
	}
	db := testCache(t)
	ctx := context.Background()
	if err := db.UpsertBatch(ctx, []*task.Task{a, b}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	flags := newMemFlags()
	r := newRunner(t, db, rem, flags, 5)

	if err := r.DueDateBackfill(ctx); err != nil {
		t.Fatalf("DueDateBackfill() failed: %v", err)
	}

	if _, ok := rem.updated["b"]; !ok {
		t.Error("failure on one task blocked patching another")
	}
	if !flags.Bool("user-1", settings.KeyDueDateBackfillComplete) {
		t.Error("per-task failures blocked the completion flag")
	}
}

func TestEndOfDay(t *testing.T) {
	in := time.Date(2026, 8, 25, 0, 0, 1, 0, time.UTC)
	got := endOfDay(in)
	want := time.Date(2026, 8, 25, 23, 59, 59, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("endOfDay(%v) = %v, want %v", in, got, want)
	}
}
