// Package cache provides an in-process TTL cache with a bounded size.
// It is designed for single-instance deployments; entries are not shared
// across processes.
package cache

import (
	"sync"
	"time"
)

// EvictReason describes why an entry left the cache.
type EvictReason string

const (
	EvictExpired EvictReason = "expired"
	EvictOldest  EvictReason = "oldest"
	EvictManual  EvictReason = "manual"
)

const (
	DefaultTTL           = time.Minute
	DefaultMaxSize       = 10_000
	DefaultSweepInterval = time.Minute
)

// Config controls cache behavior. Zero values fall back to the defaults
// above; MaxSize <= 0 disables the size bound and SweepInterval <= 0
// disables the background sweep.
type Config struct {
	DefaultTTL    time.Duration
	MaxSize       int
	SweepInterval time.Duration
	OnEvict       func(key string, reason EvictReason)
}

// Stats is a point-in-time snapshot of cache counters. Lazy expiry on
// Get and Has counts as a miss, not an eviction; evictions count sweep
// removals and capacity displacement.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Size      int   `json:"size"`
	Evictions int64 `json:"evictions"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	createdAt time.Time
}

// Cache is a TTL cache over string keys. All methods are safe for
// concurrent use. Callers construct and own their instances; there is
// no package-level cache.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	cfg     Config

	hits      int64
	misses    int64
	evictions int64

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New builds a cache from cfg. The background sweep does not start
// until StartSweep is called.
func New[V any](cfg Config) *Cache[V] {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		cfg:     cfg,
	}
}

// Get returns the live value for key. Expired entries are removed on
// access and reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		c.mu.Unlock()
		c.notifyEvict(key, EvictExpired)
		var zero V
		return zero, false
	}
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.cfg.DefaultTTL)
}

// SetTTL stores value under key with an explicit TTL. When the cache is
// at capacity the entry with the oldest creation time is displaced
// first. Displacement ignores recency of access on purpose: the policy
// is oldest-inserted, not least-recently-used.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	var evictedKey string
	var evicted bool

	c.mu.Lock()
	if c.cfg.MaxSize > 0 && len(c.entries) >= c.cfg.MaxSize {
		evictedKey, evicted = c.evictOldestLocked()
	}
	now := time.Now()
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
		createdAt: now,
	}
	c.mu.Unlock()

	if evicted {
		c.notifyEvict(evictedKey, EvictOldest)
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	_, existed := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if existed {
		c.notifyEvict(key, EvictManual)
	}
}

// Has reports whether key holds a live entry. Like Get it removes
// expired entries, but it does not touch the hit/miss counters.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.mu.Unlock()
		c.notifyEvict(key, EvictExpired)
		return false
	}
	c.mu.Unlock()
	return true
}

// DeletePrefix removes every entry whose key starts with prefix and
// returns the number removed. Used for namespace invalidation.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	var removed []string
	c.mu.Lock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()
	for _, key := range removed {
		c.notifyEvict(key, EvictManual)
	}
	return len(removed)
}

// Clear drops all entries and resets the stat counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.mu.Unlock()
}

// Stats returns current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      len(c.entries),
		Evictions: c.evictions,
	}
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (c *Cache[V]) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// StartSweep launches the periodic expired-entry sweep. It is a no-op
// when SweepInterval is unset or a sweep is already running.
func (c *Cache[V]) StartSweep() {
	if c.cfg.SweepInterval <= 0 {
		return
	}
	c.mu.Lock()
	if c.sweepStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.sweepStop = stop
	c.sweepDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-stop:
				return
			}
		}
	}()
}

// StopSweep stops the background sweep and waits for it to exit.
func (c *Cache[V]) StopSweep() {
	c.mu.Lock()
	stop, done := c.sweepStop, c.sweepDone
	c.sweepStop = nil
	c.sweepDone = nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Close stops the sweep and drops all entries.
func (c *Cache[V]) Close() {
	c.StopSweep()
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

func (c *Cache[V]) sweep() {
	now := time.Now()
	var removed []string
	c.mu.Lock()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			c.evictions++
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()
	for _, key := range removed {
		c.notifyEvict(key, EvictExpired)
	}
}

// evictOldestLocked removes the entry with the earliest creation time.
// Caller holds c.mu.
func (c *Cache[V]) evictOldestLocked() (string, bool) {
	var oldestKey string
	var oldestAt time.Time
	found := false
	for key, e := range c.entries {
		if !found || e.createdAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.createdAt
			found = true
		}
	}
	if !found {
		return "", false
	}
	delete(c.entries, oldestKey)
	c.evictions++
	return oldestKey, true
}

func (c *Cache[V]) notifyEvict(key string, reason EvictReason) {
	if c.cfg.OnEvict != nil {
		c.cfg.OnEvict(key, reason)
	}
}
