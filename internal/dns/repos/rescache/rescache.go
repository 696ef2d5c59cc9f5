// Package rescache implements the resolver's positive-answer cache: a
// TTL-expiring, memory-bounded mapping from (name, type) to a record set.
// An LRU store provides the entry-count bound and the eviction order for the
// weight bound; a bloom filter in front of it short-circuits definite misses.
package rescache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/valarpirai/dns-resolver/internal/dns/common/clock"
	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
	"github.com/valarpirai/dns-resolver/internal/dns/domain"
	"github.com/valarpirai/dns-resolver/internal/dns/services/resolver"
)

// bloom filter sizing relative to the entry bound; false positives only cost
// an extra LRU lookup.
const (
	bloomCapacityFactor = 4
	bloomFalsePositive  = 0.01
)

// entry holds one cached record set with its absolute expiry and weight.
type entry struct {
	records   []domain.ResourceRecord
	expiresAt time.Time
	weight    int64
}

// Options configures a ResponseCache.
type Options struct {
	MaxEntries     int           // hard entry-count bound
	MaxMemoryBytes int64         // approximate weight bound in octets
	MinTTL         time.Duration // record sets below this TTL are not cached
	Clock          clock.Clock
	Logger         log.Logger
}

// ResponseCache is a TTL-aware, weight-bounded DNS answer cache.
// All state is guarded by a single mutex; see the concurrency contract on
// resolver.Cache.
type ResponseCache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, *entry]
	seen      *bloom.BloomFilter
	weight    int64
	maxWeight int64
	minTTL    time.Duration
	clk       clock.Clock
	logger    log.Logger

	hits      uint64
	misses    uint64
	evictions uint64

	// reclaiming marks removals that are expiry housekeeping or explicit
	// replacement, which must not count as evictions.
	reclaiming bool
}

// New returns a ResponseCache honoring the given bounds.
func New(opts Options) (*ResponseCache, error) {
	if opts.MaxEntries <= 0 {
		return nil, fmt.Errorf("cache entry bound must be positive, got %d", opts.MaxEntries)
	}
	if opts.MaxMemoryBytes <= 0 {
		return nil, fmt.Errorf("cache memory bound must be positive, got %d", opts.MaxMemoryBytes)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	c := &ResponseCache{
		seen:      bloom.NewWithEstimates(uint(opts.MaxEntries)*bloomCapacityFactor, bloomFalsePositive),
		maxWeight: opts.MaxMemoryBytes,
		minTTL:    opts.MinTTL,
		clk:       opts.Clock,
		logger:    opts.Logger,
	}
	store, err := lru.NewWithEvict[string, *entry](opts.MaxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = store
	return c, nil
}

// onEvict runs synchronously under the cache mutex whenever the LRU drops an
// entry, keeping the weight accounting in step.
func (c *ResponseCache) onEvict(key string, e *entry) {
	c.weight -= e.weight
	if !c.reclaiming {
		c.evictions++
		c.logger.Debug(map[string]any{
			"key":    key,
			"weight": e.weight,
		}, "Cache eviction (size limit)")
	}
}

// Get returns the cached record set for (name, rrtype) if present and not
// expired. Expired entries are removed on observation and never returned.
func (c *ResponseCache) Get(name string, rrtype domain.RRType) ([]domain.ResourceRecord, bool) {
	key := domain.GenerateCacheKey(name, rrtype)

	c.mu.Lock()
	defer c.mu.Unlock()

	// The bloom filter tracks every key ever inserted: a negative test is a
	// definite miss and skips the store entirely.
	if !c.seen.TestString(key) {
		c.misses++
		return nil, false
	}

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if !e.expiresAt.After(c.clk.Now()) {
		c.reclaiming = true
		c.lru.Remove(key)
		c.reclaiming = false
		c.misses++
		return nil, false
	}

	c.hits++
	// the cache owns its record vectors; hand out a copy
	records := make([]domain.ResourceRecord, len(e.records))
	copy(records, e.records)
	return records, true
}

// Put inserts a record set under (name, rrtype). Empty sets are ignored, as
// are sets whose minimum TTL falls below the configured threshold. The entry
// expires when the shortest-lived record would. Inserting evicts LRU entries
// until both the weight bound and the entry bound hold.
func (c *ResponseCache) Put(name string, rrtype domain.RRType, records []domain.ResourceRecord) {
	if len(records) == 0 {
		return
	}

	minTTL := records[0].TTL
	for _, rr := range records[1:] {
		if rr.TTL < minTTL {
			minTTL = rr.TTL
		}
	}
	ttl := time.Duration(minTTL) * time.Second
	if ttl < c.minTTL {
		c.logger.Debug(map[string]any{
			"name": name,
			"type": rrtype.String(),
			"ttl":  minTTL,
		}, "Skipping cache, TTL below threshold")
		return
	}

	key := domain.GenerateCacheKey(name, rrtype)
	weight := int64(len(key) + 4)
	for _, rr := range records {
		weight += int64(rr.Weight())
	}
	if weight > c.maxWeight {
		c.logger.Warn(map[string]any{
			"key":    key,
			"weight": weight,
		}, "Record set exceeds total cache weight bound, not cached")
		return
	}

	stored := make([]domain.ResourceRecord, len(records))
	copy(stored, records)
	e := &entry{
		records:   stored,
		expiresAt: c.clk.Now().Add(ttl),
		weight:    weight,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// replacing a key is not an eviction; drop the old weight first
	if _, ok := c.lru.Peek(key); ok {
		c.reclaiming = true
		c.lru.Remove(key)
		c.reclaiming = false
	}

	c.lru.Add(key, e)
	c.weight += weight
	for c.weight > c.maxWeight {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	c.seen.AddString(key)

	c.logger.Debug(map[string]any{
		"key":     key,
		"records": len(stored),
		"ttl":     minTTL,
		"weight":  weight,
	}, "Cached record set")
}

// Clear drops all entries and resets the bloom filter.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reclaiming = true
	c.lru.Purge()
	c.reclaiming = false
	c.weight = 0
	c.seen.ClearAll()
	c.logger.Info(nil, "Cache cleared")
}

// Stats returns a snapshot of the cache counters.
func (c *ResponseCache) Stats() resolver.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return resolver.CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.lru.Len(),
		Weight:    c.weight,
	}
}

// LogStatsEvery emits a cache statistics log line at the given interval until
// the context is cancelled. An interval of zero disables emission.
func (c *ResponseCache) LogStatsEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		c.logger.Info(nil, "Periodic cache statistics logging is disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logStats()
			}
		}
	}()
}

func (c *ResponseCache) logStats() {
	s := c.Stats()
	var hitRate float64
	if total := s.Hits + s.Misses; total > 0 {
		hitRate = float64(s.Hits) / float64(total) * 100
	}
	c.logger.Info(map[string]any{
		"hits":      s.Hits,
		"misses":    s.Misses,
		"evictions": s.Evictions,
		"entries":   s.Entries,
		"weight":    s.Weight,
		"hit_rate":  fmt.Sprintf("%.2f%%", hitRate),
	}, "Cache statistics")
}

var _ resolver.Cache = (*ResponseCache)(nil)
