package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/btree"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/observability"
)

// Fetcher loads the value for key. Returning ok=false marks the value as
// undefined: nothing is cached and callers receive ok=false.
type Fetcher[K comparable, V any] func(ctx context.Context, key K) (value V, ok bool, err error)

// Options configures a [Cache].
type Options struct {
	// Name labels the cache in logs and observability hooks.
	Name string

	// Lifetime is how long a resolved entry stays fresh. Zero disables
	// expiry; Sweep then reports no next deadline.
	Lifetime time.Duration

	// AccessResetsLifetime measures expiry from the last access instead of
	// the last write.
	AccessResetsLifetime bool

	// SweepLimit bounds the number of evictions per auto-clean sweep.
	// Zero means unlimited.
	SweepLimit int

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger receives sweep diagnostics. Defaults to log.Default().
	Logger *log.Logger
}

// Status is the state of a cache entry.
type Status int

const (
	Absent Status = iota
	Pending
	Resolved
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Lookup is a snapshot of one entry returned by [Cache.Get].
// Flight is set only when Status is Pending; Value and the stamps only when
// Status is Resolved.
type Lookup[V any] struct {
	Status     Status
	Value      V
	Flight     *Flight[V]
	UpdatedAt  time.Time
	AccessedAt time.Time
}

// Flight is one in-flight fetch shared by every caller of the same key.
type Flight[V any] struct {
	done  chan struct{}
	value V
	ok    bool
	err   error
}

func newFlight[V any]() *Flight[V] {
	return &Flight[V]{done: make(chan struct{})}
}

// Done is closed once the flight has settled and the cache reflects its
// outcome.
func (f *Flight[V]) Done() <-chan struct{} { return f.done }

// Wait blocks until the flight settles or ctx ends. Cancelling ctx only
// abandons the wait; the fetch itself keeps running for other callers.
func (f *Flight[V]) Wait(ctx context.Context) (V, bool, error) {
	select {
	case <-f.done:
		return f.value, f.ok, f.err
	case <-ctx.Done():
		var zero V
		return zero, false, errors.Cancelled(ctx.Err())
	}
}

type entry[V any] struct {
	flight     *Flight[V] // non-nil while pending
	value      V
	updatedAt  time.Time
	accessedAt time.Time
	seq        uint64 // position in the order index, zero while pending
}

// Cache is a generic single-flight cache with optional TTL expiry.
// It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	fetch  Fetcher[K, V]
	opts   Options
	now    func() time.Time
	logger *log.Logger

	mu      sync.Mutex
	entries map[K]*entry[V]
	order   *btree.Map[uint64, K]
	seq     uint64

	cleaning bool
	cleanGen uint64
	timer    *time.Timer
}

// New creates a cache backed by fetch. fetch may be nil for caches that are
// only seeded with [Cache.Set] and [Cache.SetFunc].
func New[K comparable, V any](fetch Fetcher[K, V], opts Options) *Cache[K, V] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Cache[K, V]{
		fetch:   fetch,
		opts:    opts,
		now:     now,
		logger:  logger,
		entries: make(map[K]*entry[V]),
		order:   btree.NewMap[uint64, K](0),
	}
}

// Name returns the configured cache name.
func (c *Cache[K, V]) Name() string { return c.opts.Name }

// Len returns the number of pending and resolved entries, expired ones
// included until the next sweep.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch unconditionally starts a new fetch for key, replacing whatever the
// cache held, and waits for it.
func (c *Cache[K, V]) Fetch(ctx context.Context, key K) (V, bool, error) {
	if err := c.checkFetcher(); err != nil {
		var zero V
		return zero, false, err
	}
	c.mu.Lock()
	f := c.startFetchLocked(ctx, key)
	c.mu.Unlock()
	return f.Wait(ctx)
}

// GetOrFetch joins a pending fetch for key, returns a fresh resolved value,
// or starts a new fetch. The lookup and the start of a fetch happen under
// one lock, so racing callers share a single flight.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, key K) (V, bool, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if f := e.flight; f != nil {
			c.mu.Unlock()
			observability.Cache().OnCacheHit(ctx, c.opts.Name)
			return f.Wait(ctx)
		}
		now := c.now()
		if !c.expired(e, now) {
			c.touchLocked(key, e, now)
			v := e.value
			c.mu.Unlock()
			observability.Cache().OnCacheHit(ctx, c.opts.Name)
			return v, true, nil
		}
	}
	if err := c.checkFetcher(); err != nil {
		c.mu.Unlock()
		var zero V
		return zero, false, err
	}
	f := c.startFetchLocked(ctx, key)
	c.mu.Unlock()
	observability.Cache().OnCacheMiss(ctx, c.opts.Name)
	return f.Wait(ctx)
}

func (c *Cache[K, V]) checkFetcher() error {
	if c.fetch == nil {
		return errors.New(errors.ErrCodeNotConfigured, "cache %q has no fetcher", c.opts.Name)
	}
	return nil
}

func (c *Cache[K, V]) startFetchLocked(ctx context.Context, key K) *Flight[V] {
	return c.startLocked(ctx, key, func(ctx context.Context) (V, bool, error) { return c.fetch(ctx, key) })
}

// Get returns the entry for key without fetching. Expired entries read as
// Absent. When access is true a resolved hit is recorded as an access.
func (c *Cache[K, V]) Get(key K, access bool) Lookup[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Lookup[V]{}
	}
	if e.flight != nil {
		return Lookup[V]{Status: Pending, Flight: e.flight}
	}
	now := c.now()
	if c.expired(e, now) {
		return Lookup[V]{}
	}
	if access {
		c.touchLocked(key, e, now)
	}
	return Lookup[V]{
		Status:     Resolved,
		Value:      e.value,
		UpdatedAt:  e.updatedAt,
		AccessedAt: e.accessedAt,
	}
}

// Set stores value as a resolved entry, replacing any pending fetch.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
	now := c.now()
	e := &entry[V]{value: value, updatedAt: now, accessedAt: now}
	c.entries[key] = e
	c.pushLocked(key, e)
	observability.Cache().OnCacheSet(context.Background(), c.opts.Name)
}

// SetFunc seeds key with an operation. It follows the same rules as Fetch:
// callers asking for key meanwhile join the returned flight.
func (c *Cache[K, V]) SetFunc(ctx context.Context, key K, fn func(context.Context) (V, bool, error)) *Flight[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx, key, fn)
}

// Delete removes key. A pending fetch for key still completes for its
// waiters but no longer updates the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *Cache[K, V]) startLocked(ctx context.Context, key K, fn func(context.Context) (V, bool, error)) *Flight[V] {
	c.removeLocked(key)
	f := newFlight[V]()
	c.entries[key] = &entry[V]{flight: f}
	go c.run(context.WithoutCancel(ctx), key, f, fn)
	return f
}

func (c *Cache[K, V]) run(ctx context.Context, key K, f *Flight[V], fn func(context.Context) (V, bool, error)) {
	var (
		v   V
		ok  bool
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New(errors.ErrCodeInternal, "cache %q: fetch panicked: %v", c.opts.Name, r)
			}
		}()
		v, ok, err = fn(ctx)
	}()
	c.settle(key, f, v, ok, err)
}

func (c *Cache[K, V]) settle(key K, f *Flight[V], v V, ok bool, err error) {
	c.mu.Lock()
	if e, found := c.entries[key]; found && e.flight == f {
		if err != nil || !ok {
			delete(c.entries, key)
		} else {
			now := c.now()
			e.flight = nil
			e.value = v
			e.updatedAt = now
			e.accessedAt = now
			c.pushLocked(key, e)
		}
	}
	c.mu.Unlock()

	if err == nil && ok {
		observability.Cache().OnCacheSet(context.Background(), c.opts.Name)
	}
	f.value, f.ok, f.err = v, ok, err
	close(f.done)
}

func (c *Cache[K, V]) removeLocked(key K) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.seq != 0 {
		c.order.Delete(e.seq)
	}
	delete(c.entries, key)
}

// pushLocked moves e to the newest position of the order index.
func (c *Cache[K, V]) pushLocked(key K, e *entry[V]) {
	if e.seq != 0 {
		c.order.Delete(e.seq)
	}
	c.seq++
	e.seq = c.seq
	c.order.Set(e.seq, key)
}

func (c *Cache[K, V]) touchLocked(key K, e *entry[V], now time.Time) {
	e.accessedAt = now
	if c.opts.AccessResetsLifetime {
		c.pushLocked(key, e)
	}
}

func (c *Cache[K, V]) stamp(e *entry[V]) time.Time {
	if c.opts.AccessResetsLifetime {
		return e.accessedAt
	}
	return e.updatedAt
}

func (c *Cache[K, V]) expired(e *entry[V], now time.Time) bool {
	return c.opts.Lifetime > 0 && now.Sub(c.stamp(e)) > c.opts.Lifetime
}
