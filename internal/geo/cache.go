package geo

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/jobs"
)

type cacheEntry struct {
	loc      *audit.Location
	storedAt time.Time
}

// MemoryCache is an in-process TTL cache for resolved locations.
// Expired entries are treated as absent on lookup and purged either
// lazily or by the optional background sweeper.
type MemoryCache struct {
	ttl      time.Duration
	now      func() time.Time
	reporter jobs.Reporter

	mu      sync.RWMutex
	entries map[string]cacheEntry

	sweepMu sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMemoryCache creates a cache with the given TTL. A zero TTL falls
// back to DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// SetNow overrides the cache clock, for tests.
func (c *MemoryCache) SetNow(now func() time.Time) {
	c.now = now
}

// SetReporter attaches job metrics to sweeper runs. Call before
// StartSweeper; a nil reporter disables reporting.
func (c *MemoryCache) SetReporter(r jobs.Reporter) {
	c.reporter = r
}

// Get returns the cached location for an IP. An entry older than the
// TTL is purged and reported as a miss.
func (c *MemoryCache) Get(ctx context.Context, ip string) (*audit.Location, bool) {
	c.mu.RLock()
	e, ok := c.entries[ip]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.storedAt) >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, ok := c.entries[ip]; ok && c.now().Sub(cur.storedAt) >= c.ttl {
			delete(c.entries, ip)
		}
		c.mu.Unlock()
		return nil, false
	}

	if e.loc == nil {
		return nil, true
	}
	loc := *e.loc
	return &loc, true
}

// Set stores a resolved location (possibly nil) with the current time.
func (c *MemoryCache) Set(ctx context.Context, ip string, loc *audit.Location) {
	var stored *audit.Location
	if loc != nil {
		cp := *loc
		stored = &cp
	}
	c.mu.Lock()
	c.entries[ip] = cacheEntry{loc: stored, storedAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of cached entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeper launches a background goroutine that purges expired
// entries every interval, bounding map growth under high-cardinality IP
// traffic. Calling it twice is a no-op.
func (c *MemoryCache) StartSweeper(interval time.Duration) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.stopCh != nil {
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go func(stopCh, doneCh chan struct{}) {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				c.sweepOnce()
			}
		}
	}(c.stopCh, c.doneCh)
}

// StopSweeper stops the background sweeper and waits for it to finish.
func (c *MemoryCache) StopSweeper() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.stopCh = nil
	c.doneCh = nil
}

// sweepOnce runs one sweep under job metrics.
func (c *MemoryCache) sweepOnce() {
	_ = jobs.Track(c.reporter, jobs.JobTypeGeoCacheSweep, func() error {
		c.sweep()
		return nil
	})
}

func (c *MemoryCache) sweep() {
	now := c.now()
	c.mu.Lock()
	for ip, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, ip)
		}
	}
	c.mu.Unlock()
}
