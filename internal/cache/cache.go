// Package cache implements a two-tier TTL cache: a bounded in-memory map in
// front of an optional persistent db.BlobStore.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/db"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

// Defaults.
const (
	DefaultMaxEntries    = 100
	DefaultSweepInterval = time.Hour
)

// Entry is the stored form of a cached value. Timestamp and TTL are milliseconds;
// a zero TTL never expires.
type Entry[T any] struct {
	Value     T     `json:"value"`
	Timestamp int64 `json:"timestamp"`
	TTL       int64 `json:"ttl"`
}

func (e Entry[T]) expired(now time.Time) bool {
	return e.TTL > 0 && now.UnixMilli()-e.Timestamp > e.TTL
}

// Options configures a Cache.
type Options struct {
	// Name labels metrics and namespaces persistent keys as "<name>:<key>".
	Name          string
	MaxEntries    int
	SweepInterval time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

type item[T any] struct {
	entry Entry[T]
	seq   uint64
}

// Cache is safe for concurrent use. Persistent I/O never happens under the lock.
type Cache[T any] struct {
	name       string
	maxEntries int
	sweepEvery time.Duration
	now        func() time.Time
	store      db.BlobStore
	logger     *zap.Logger

	mu    sync.Mutex
	items map[string]item[T]
	seq   uint64

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates a cache. store may be nil for a memory-only cache.
func New[T any](store db.BlobStore, logger *zap.Logger, opts Options) *Cache[T] {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache[T]{
		name:       opts.Name,
		maxEntries: opts.MaxEntries,
		sweepEvery: opts.SweepInterval,
		now:        opts.Now,
		store:      store,
		logger:     logger.With(zap.String("cache", opts.Name)),
		items:      make(map[string]item[T]),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Get returns the value for key. On a memory miss the persistent tier is
// consulted when persistent is set, and a hit there is promoted into memory.
func (c *Cache[T]) Get(ctx context.Context, key string, persistent bool) (T, bool) {
	var zero T
	now := c.now()

	c.mu.Lock()
	it, ok := c.items[key]
	if ok && it.entry.expired(now) {
		delete(c.items, key)
		c.updateGauge()
		ok = false
		metrics.CacheEvictionsTotal.WithLabelValues(c.name, "expired").Inc()
	}
	c.mu.Unlock()

	if ok {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "memory_hit").Inc()
		return it.entry.Value, true
	}
	if !persistent || c.store == nil {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	entry, ok := c.loadPersistent(ctx, key, now)
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	c.mu.Lock()
	c.insert(key, entry)
	c.mu.Unlock()

	metrics.CacheRequestsTotal.WithLabelValues(c.name, "persistent_hit").Inc()
	return entry.Value, true
}

// Set stores value with ttl. Persistent write failures are logged, never returned.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration, persistent bool) {
	entry := Entry[T]{Value: value, Timestamp: c.now().UnixMilli(), TTL: ttl.Milliseconds()}

	c.mu.Lock()
	c.insert(key, entry)
	c.mu.Unlock()

	if !persistent || c.store == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache entry not serializable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.storeKey(key), data); err != nil {
		c.storageFailed("set", key, err)
	}
}

// Remove deletes key from both tiers.
func (c *Cache[T]) Remove(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.updateGauge()
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Del(ctx, c.storeKey(key)); err != nil {
			c.storageFailed("del", key, err)
		}
	}
}

// Clear empties both tiers. Only this cache's persistent keys are touched.
func (c *Cache[T]) Clear(ctx context.Context) {
	c.mu.Lock()
	c.items = make(map[string]item[T])
	c.updateGauge()
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	keys, err := c.persistentKeys(ctx)
	if err != nil {
		c.storageFailed("keys", "", err)
		return
	}
	for _, k := range keys {
		if err := c.store.Del(ctx, c.storeKey(k)); err != nil {
			c.storageFailed("del", k, err)
		}
	}
}

// Len returns the number of entries in the memory tier.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep drops expired entries from both tiers and undecodable persistent
// records. Returns the number of entries removed.
func (c *Cache[T]) Sweep(ctx context.Context) int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, it := range c.items {
		if it.entry.expired(now) {
			delete(c.items, k)
			removed++
		}
	}
	c.updateGauge()
	c.mu.Unlock()
	metrics.CacheEvictionsTotal.WithLabelValues(c.name, "expired").Add(float64(removed))

	if c.store == nil {
		return removed
	}
	keys, err := c.persistentKeys(ctx)
	if err != nil {
		c.storageFailed("keys", "", err)
		return removed
	}
	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		data, err := c.store.Get(ctx, c.storeKey(k))
		if err != nil {
			if !errors.Is(err, db.ErrKeyNotFound) {
				c.storageFailed("get", k, err)
			}
			continue
		}
		reason := ""
		var entry Entry[T]
		if err := json.Unmarshal(data, &entry); err != nil {
			reason = "corrupt"
		} else if entry.expired(now) {
			reason = "expired"
		}
		if reason == "" {
			continue
		}
		if err := c.store.Del(ctx, c.storeKey(k)); err != nil {
			c.storageFailed("del", k, err)
			continue
		}
		metrics.CacheEvictionsTotal.WithLabelValues(c.name, reason).Inc()
		removed++
	}

	if removed > 0 {
		c.logger.Debug("cache sweep", zap.Int("removed", removed))
	}
	return removed
}

// Start runs Sweep every SweepInterval until ctx is done or Close is called.
func (c *Cache[T]) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.done)
			ticker := time.NewTicker(c.sweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.stop:
					return
				case <-ticker.C:
					c.Sweep(ctx)
				}
			}
		}()
	})
}

// Close stops the sweeper and waits for it to exit.
func (c *Cache[T]) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	started := true
	c.startOnce.Do(func() { started = false })
	if started {
		<-c.done
	}
}

// insert must be called with mu held.
func (c *Cache[T]) insert(key string, entry Entry[T]) {
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.evictOldest()
	}
	c.seq++
	c.items[key] = item[T]{entry: entry, seq: c.seq}
	c.updateGauge()
}

// evictOldest drops the entry with the oldest timestamp, insertion order breaking ties.
func (c *Cache[T]) evictOldest() {
	var (
		oldestKey string
		oldest    item[T]
		found     bool
	)
	for k, it := range c.items {
		if !found || it.entry.Timestamp < oldest.entry.Timestamp ||
			(it.entry.Timestamp == oldest.entry.Timestamp && it.seq < oldest.seq) {
			oldestKey, oldest, found = k, it, true
		}
	}
	if found {
		delete(c.items, oldestKey)
		metrics.CacheEvictionsTotal.WithLabelValues(c.name, "capacity").Inc()
	}
}

func (c *Cache[T]) loadPersistent(ctx context.Context, key string, now time.Time) (Entry[T], bool) {
	var entry Entry[T]
	data, err := c.store.Get(ctx, c.storeKey(key))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.storageFailed("get", key, err)
		}
		return entry, false
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("dropping undecodable cache record", zap.String("key", key), zap.Error(err))
		c.dropPersistent(ctx, key, "corrupt")
		return entry, false
	}
	if entry.expired(now) {
		c.dropPersistent(ctx, key, "expired")
		return entry, false
	}
	return entry, true
}

func (c *Cache[T]) dropPersistent(ctx context.Context, key, reason string) {
	if err := c.store.Del(ctx, c.storeKey(key)); err != nil {
		c.storageFailed("del", key, err)
		return
	}
	metrics.CacheEvictionsTotal.WithLabelValues(c.name, reason).Inc()
}

func (c *Cache[T]) persistentKeys(ctx context.Context) ([]string, error) {
	all, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	prefix := c.name + ":"
	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	return keys, nil
}

func (c *Cache[T]) storeKey(key string) string { return c.name + ":" + key }

func (c *Cache[T]) storageFailed(op, key string, err error) {
	metrics.CacheStorageErrorsTotal.WithLabelValues(c.name, op).Inc()
	c.logger.Warn("persistent cache operation failed",
		zap.String("op", op), zap.String("key", key), zap.Error(err))
}

// updateGauge must be called with mu held.
func (c *Cache[T]) updateGauge() {
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(len(c.items)))
}
