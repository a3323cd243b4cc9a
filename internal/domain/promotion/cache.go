package promotion

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// ErrRefreshInProgress is returned when a refresh of every branch is already
// running.
var ErrRefreshInProgress = errors.New("promotion refresh in progress")

// Listener is notified with the fresh promotion list of a branch.
type Listener func(branchID string, promos []Promotion)

type cacheEntry struct {
	promos    []Promotion
	fetchedAt time.Time
}

// Cache keeps the latest promotion list per branch.
type Cache struct {
	repo Repository
	lg   *zap.Logger
	now  func() time.Time

	mu       sync.RWMutex
	branches map[string]cacheEntry

	busy atomic.Bool

	listenersMu sync.Mutex
	listeners   map[uint64]Listener
	nextID      uint64
}

// NewCache creates an empty Cache backed by repo.
func NewCache(repo Repository, lg *zap.Logger) *Cache {
	return &Cache{
		repo:      repo,
		lg:        lg,
		now:       time.Now,
		branches:  map[string]cacheEntry{},
		listeners: map[uint64]Listener{},
	}
}

// Get returns the cached promotions for a branch, loading them on first use.
func (c *Cache) Get(ctx context.Context, branchID string) ([]Promotion, error) {
	c.mu.RLock()
	e, ok := c.branches[branchID]
	c.mu.RUnlock()
	if ok {
		return slices.Clone(e.promos), nil
	}
	return c.Refresh(ctx, branchID)
}

// Refresh reloads a branch from the repository and notifies listeners. On
// failure the previous list is kept.
func (c *Cache) Refresh(ctx context.Context, branchID string) ([]Promotion, error) {
	promos, err := c.repo.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, errors.Wrapf(err, "list promotions for branch %s", branchID)
	}

	c.mu.Lock()
	c.branches[branchID] = cacheEntry{promos: promos, fetchedAt: c.now()}
	c.mu.Unlock()

	c.notify(branchID, promos)
	return slices.Clone(promos), nil
}

// RefreshAll reloads every branch seen so far. Branch failures are logged and
// do not stop the others; the first one is returned.
func (c *Cache) RefreshAll(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer c.busy.Store(false)

	var first error
	for _, branchID := range c.Branches() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.Refresh(ctx, branchID); err != nil {
			c.lg.Warn("Refresh promotions failed",
				zap.String("branch_id", branchID),
				zap.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Branches lists the branch ids held by the cache, sorted.
func (c *Cache) Branches() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.branches))
	for id := range c.branches {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// FetchedAt returns when a branch was last loaded.
func (c *Cache) FetchedAt(branchID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.branches[branchID]
	return e.fetchedAt, ok
}

// Subscribe registers fn for refresh notifications. The returned function
// removes it.
func (c *Cache) Subscribe(fn Listener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Cache) notify(branchID string, promos []Promotion) {
	c.listenersMu.Lock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(branchID, slices.Clone(promos))
	}
}
