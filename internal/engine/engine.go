// Package engine implements the local-first task synchronization engine.
//
// The engine keeps three independently paginated partitions (incomplete,
// completed, soft-deleted) consistent across an in-memory page, the embedded
// SQLite cache, and the remote authoritative store. Reads flow one way
// (remote -> cache -> in-memory); writes flow from memory to the remote store
// and to the cache independently, not transactionally.
//
// All published state is mutated under a single mutex, the Go rendering of
// the source-of-truth single-writer context. I/O runs outside the lock; each
// partition's load, loadMore, and refresh are serialized by its own loading
// flag rather than a global lock, so partitions progress independently.
package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/kmorehouse/taskmirror/internal/cache"
	"github.com/kmorehouse/taskmirror/internal/remote"
	"github.com/kmorehouse/taskmirror/internal/task"
)

// RemoteStore is the slice of the remote client the engine consumes. It is
// satisfied by *remote.Client; tests substitute a scripted fake.
type RemoteStore interface {
	List(ctx context.Context, filter cache.Filter, limit, offset int) ([]*task.Task, bool, error)
	Create(ctx context.Context, fields remote.Fields) (*task.Task, error)
	Update(ctx context.Context, id string, fields remote.Fields) (*task.Task, error)
	SoftDelete(ctx context.Context, id, actor string) (*task.Task, error)
}

// Config holds engine construction options.
type Config struct {
	// PageSize is the partition page size. Zero means 100.
	PageSize int
	// RefreshInterval is the background refresh period. Zero means 30s.
	RefreshInterval time.Duration
	// CreatedWindow is the creation-date floor applied to every partition
	// query, as a lookback from now. Zero means no floor.
	CreatedWindow time.Duration
	// LoadMoreThreshold is how close to the end of the page the trigger
	// task must be before LoadMore fires. Zero means 10.
	LoadMoreThreshold int
	// Actor is recorded on soft deletes, typically the user id.
	Actor string
	// Logger for engine activity. Nil means a default stderr logger.
	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.PageSize == 0 {
		c.PageSize = 100
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.LoadMoreThreshold == 0 {
		c.LoadMoreThreshold = 10
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
}

// Engine orchestrates partition loads, pagination, background refresh, and
// per-task mutations. Construct one at process start and pass the reference
// to consumers; there is no package-level instance.
type Engine struct {
	cache  *cache.DB
	remote RemoteStore
	cfg    Config
	logger *log.Logger

	// mu is the single-writer context: every partition list, offset, and
	// flag below is read and written only while holding it.
	mu      sync.Mutex
	parts   map[Partition]*partitionState
	lastErr error
	active  bool
	vis     visibilityState

	subsMu sync.Mutex
	subs   []chan Snapshot

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates an Engine. The cache must be opened and have its schema
// initialized before passing it in.
func New(db *cache.DB, store RemoteStore, cfg Config) *Engine {
	cfg.setDefaults()

	parts := make(map[Partition]*partitionState, len(Partitions))
	for _, p := range Partitions {
		parts[p] = &partitionState{}
	}

	return &Engine{
		cache:  db,
		remote: store,
		cfg:    cfg,
		logger: cfg.Logger,
		parts:  parts,
		stop:   make(chan struct{}),
	}
}

// SetActive marks whether a consuming view is currently visible. The
// background refresh only runs while active.
func (e *Engine) SetActive(active bool) {
	e.mu.Lock()
	e.active = active
	e.mu.Unlock()
}

// Stop halts the background refresh loop and waits for in-flight background
// work to finish. In-flight remote calls complete or fail silently.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()
}

// createdFloor computes the creation-date floor for partition queries.
func (e *Engine) createdFloor() time.Time {
	if e.cfg.CreatedWindow == 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(-e.cfg.CreatedWindow)
}

func (e *Engine) filter(p Partition) cache.Filter {
	return p.Filter(e.createdFloor())
}

// tryBeginLoad flips the partition's loading flag, returning false when a
// load is already in flight.
func (e *Engine) tryBeginLoad(p Partition) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.parts[p]
	if st.loading {
		return false
	}
	st.loading = true
	return true
}

func (e *Engine) endLoad(p Partition) {
	e.mu.Lock()
	e.parts[p].loading = false
	e.mu.Unlock()
}

// recordError publishes a transient failure without clearing displayed data.
func (e *Engine) recordError(p Partition, err error) {
	e.mu.Lock()
	e.parts[p].err = err
	e.lastErr = err
	e.mu.Unlock()
	e.publish()
}
