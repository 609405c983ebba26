// Package cache implements the in-process TTL cache (C2) used to
// coalesce hot reads over the KV store: config lists, history ranges,
// stats, and log queries. Each logical bucket gets its own expirable
// LRU so a bucket can be cleared without touching unrelated keys.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sitepulse/sitepulse/internal/metrics"
)

// Bucket names the logical partitions that can be cleared
// independently, matching the groups of keys that share an
// invalidation rule (see Clear callers in internal/scheduler
// and internal/api).
type Bucket string

const (
	BucketConfigs Bucket = "configs"
	BucketHistory Bucket = "history"
	BucketStats   Bucket = "stats"
	BucketLogs    Bucket = "logs"
)

// AllMonitorConfigsKey is the single cache key the scheduler and the
// monitor-mutating API handlers invalidate on every config write.
const AllMonitorConfigsKey = "all_monitor_configs"

// Cache is the interface the rest of the application depends on. It
// never returns an error: a cache is an optimization, not a source of
// truth, so a miss is represented purely by the boolean return.
type Cache interface {
	Get(bucket Bucket, key string) ([]byte, bool)
	Set(bucket Bucket, key string, value []byte)
	Delete(bucket Bucket, key string)
	Has(bucket Bucket, key string) bool
	Clear(bucket Bucket)
	ClearAll()
	Stats() Stats
}

// Stats summarizes the cache for the /api/system/cache endpoint.
type Stats struct {
	Size int            `json:"cacheSize"`
	Keys map[string]int `json:"cacheKeys"`
}

type bucketCache struct {
	lru *lru.LRU[string, []byte]
}

type memoryCache struct {
	buckets map[Bucket]*bucketCache
	ttl     map[Bucket]time.Duration
	size    int
	metrics *metrics.Registry
}

// TTLConfig maps each bucket to its entry lifetime.
type TTLConfig struct {
	Configs time.Duration
	History time.Duration
	Stats   time.Duration
	Logs    time.Duration
}

// DefaultTTLConfig matches spec.md's implicit "reduce KV read volume"
// intent without making any single bucket stale for long.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Configs: 30 * time.Second,
		History: 30 * time.Second,
		Stats:   60 * time.Second,
		Logs:    15 * time.Second,
	}
}

// New builds a Cache with one bounded, expirable LRU per bucket. size
// is the per-bucket entry cap. reg may be nil, in which case hits and
// misses go unrecorded.
func New(size int, ttl TTLConfig, reg *metrics.Registry) Cache {
	ttls := map[Bucket]time.Duration{
		BucketConfigs: ttl.Configs,
		BucketHistory: ttl.History,
		BucketStats:   ttl.Stats,
		BucketLogs:    ttl.Logs,
	}
	buckets := make(map[Bucket]*bucketCache, len(ttls))
	for b, d := range ttls {
		buckets[b] = &bucketCache{lru: lru.NewLRU[string, []byte](size, nil, d)}
	}
	return &memoryCache{buckets: buckets, ttl: ttls, size: size, metrics: reg}
}

func (c *memoryCache) Get(bucket Bucket, key string) ([]byte, bool) {
	b, ok := c.buckets[bucket]
	if !ok {
		return nil, false
	}
	value, ok := b.lru.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHits.WithLabelValues(string(bucket)).Inc()
		} else {
			c.metrics.CacheMisses.WithLabelValues(string(bucket)).Inc()
		}
	}
	return value, ok
}

func (c *memoryCache) Set(bucket Bucket, key string, value []byte) {
	b, ok := c.buckets[bucket]
	if !ok {
		return
	}
	b.lru.Add(key, value)
}

func (c *memoryCache) Delete(bucket Bucket, key string) {
	b, ok := c.buckets[bucket]
	if !ok {
		return
	}
	b.lru.Remove(key)
}

func (c *memoryCache) Has(bucket Bucket, key string) bool {
	b, ok := c.buckets[bucket]
	if !ok {
		return false
	}
	return b.lru.Contains(key)
}

func (c *memoryCache) Clear(bucket Bucket) {
	b, ok := c.buckets[bucket]
	if !ok {
		return
	}
	b.lru.Purge()
}

func (c *memoryCache) ClearAll() {
	for _, b := range c.buckets {
		b.lru.Purge()
	}
}

func (c *memoryCache) Stats() Stats {
	keys := make(map[string]int, len(c.buckets))
	total := 0
	for name, b := range c.buckets {
		n := b.lru.Len()
		keys[string(name)] = n
		total += n
	}
	return Stats{Size: total, Keys: keys}
}
