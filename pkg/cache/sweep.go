package cache

import (
	"context"
	"time"

	"github.com/matzehuels/metagate/pkg/observability"
)

// minSweepInterval keeps a self-rescheduling sweep from spinning when an
// entry sits exactly on its deadline.
const minSweepInterval = time.Millisecond

// Sweep evicts expired entries oldest-first and stops at the first entry
// that is still fresh. It returns the time until the next entry expires and
// true, or false when no lifetime is configured.
//
// limit bounds the number of evictions; zero means unlimited. When the limit
// is reached the returned delay is zero so the caller can continue at once.
// An empty cache reports the full lifetime.
func (c *Cache[K, V]) Sweep(limit int) (time.Duration, bool) {
	if c.opts.Lifetime <= 0 {
		return 0, false
	}

	type victim struct {
		seq uint64
		key K
	}

	c.mu.Lock()
	now := c.now()
	next := c.opts.Lifetime
	var victims []victim
	c.order.Scan(func(seq uint64, key K) bool {
		if limit > 0 && len(victims) >= limit {
			next = 0
			return false
		}
		age := now.Sub(c.stamp(c.entries[key]))
		if age > c.opts.Lifetime {
			victims = append(victims, victim{seq, key})
			return true
		}
		next = c.opts.Lifetime - age
		return false
	})
	for _, v := range victims {
		c.order.Delete(v.seq)
		delete(c.entries, v.key)
	}
	c.mu.Unlock()

	if n := len(victims); n > 0 {
		c.logger.Debug("cache sweep", "cache", c.opts.Name, "evicted", n, "next", next)
		observability.Cache().OnCacheEvict(context.Background(), c.opts.Name, n)
	}
	return next, true
}

// StartAutoClean begins periodic sweeping. It is a no-op when already
// running or when no lifetime is configured.
func (c *Cache[K, V]) StartAutoClean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleaning || c.opts.Lifetime <= 0 {
		return
	}
	c.cleaning = true
	c.cleanGen++
	c.scheduleLocked(c.cleanGen, c.opts.Lifetime)
}

// StopAutoClean stops periodic sweeping. It is a no-op when not running.
func (c *Cache[K, V]) StopAutoClean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cleaning {
		return
	}
	c.cleaning = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// AutoCleaning reports whether periodic sweeping is active.
func (c *Cache[K, V]) AutoCleaning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleaning
}

func (c *Cache[K, V]) scheduleLocked(gen uint64, d time.Duration) {
	if d < minSweepInterval {
		d = minSweepInterval
	}
	c.timer = time.AfterFunc(d, func() { c.autoClean(gen) })
}

func (c *Cache[K, V]) autoClean(gen uint64) {
	next, ok := c.Sweep(c.opts.SweepLimit)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok || !c.cleaning || c.cleanGen != gen {
		return
	}
	c.scheduleLocked(gen, next)
}
