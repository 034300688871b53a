// Package cache implements the in-process TTL cache (C1): a map keyed by
// operation + canonical params, lazily-evicting reads, and a periodic
// sweeper that bounds memory.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brightline-ops/bookcore/internal/system"
	"github.com/brightline-ops/bookcore/pkg/logger"
)

var _ system.Service = (*Cache)(nil)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Stats is the snapshot returned by Stats().
type Stats struct {
	Size    int
	Hits    int64
	Misses  int64
	HitRate float64
}

// Cache is the TTL cache shared by the upstream client (C2) and the live
// fabric (C7).
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	hits     int64
	misses   int64
	sweepInterval time.Duration

	log *logger.Logger

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates an empty cache. sweepInterval defaults to 30s when zero, per
// the default sweeper cadence.
func New(sweepInterval time.Duration, log *logger.Logger) *Cache {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Cache{
		entries:       make(map[string]*entry),
		sweepInterval: sweepInterval,
		log:           log,
	}
}

// Key builds the canonical cache key: operation || '|' || canonical_json(params).
// Map keys are sorted before marshaling so equivalent param sets collide.
func Key(operation string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, params[k])
	}
	canonical, err := json.Marshal(ordered)
	if err != nil {
		// params are always plain strings; Marshal cannot fail on them.
		canonical = []byte("[]")
	}
	return fmt.Sprintf("%s|%s", operation, canonical)
}

// Get returns the cached value and true, or (nil, false) on MISS. A key
// that is present but past its expiry is evicted on read (lazy eviction)
// and counted as a miss.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if !time.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// Put stores value under key with the given TTL, supplied per call by the
// caller (the operation registry's default, or an override).
func (c *Cache) Put(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Sweep removes every entry whose expiry has passed. Correctness of Get
// never depends on Sweep running; it exists only to bound memory.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats returns the current size and monotonic hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	if total == 0 {
		total = 1
	}
	return Stats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: float64(hits) / float64(total),
	}
}

// Name identifies the cache as a lifecycle service.
func (c *Cache) Name() string { return "ttl-cache" }

// Descriptor advertises the cache's architectural placement.
func (c *Cache) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         "ttl-cache",
		Layer:        system.LayerData,
		Capabilities: []string{"get", "put", "sweep"},
	}
}

// Start launches the periodic sweeper goroutine.
func (c *Cache) Start(ctx context.Context) error {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.runMu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				removed := c.Sweep()
				if c.log != nil && removed > 0 {
					c.log.WithFields(nil).WithField("removed", removed).Debug("cache sweep")
				}
			}
		}
	}()
	return nil
}

// Stop halts the sweeper and waits for it to exit.
func (c *Cache) Stop(ctx context.Context) error {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
