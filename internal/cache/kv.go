package cache

import (
	"context"
	"sync"
	"time"
)

// KV is the hot-payload cache consumed by the adapter runtime. Both the
// in-process and the Redis tier implement it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
	Stats() Stats
	Close()
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
}

type memoryEntry struct {
	value    []byte
	expires  time.Time
	accessed time.Time
}

// Memory is a bounded in-process KV store with TTL expiry and LRU eviction.
// Expired entries are dropped lazily on Get and opportunistically by a
// periodic sweep.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	maxEntries int
	stats      Stats
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewMemory creates an in-process cache bounded to maxEntries items.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c := &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		c.stats.Misses++
		return nil, false
	}
	e.accessed = time.Now()
	c.stats.Hits++
	return e.value, true
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}
	now := time.Now()
	c.entries[key] = &memoryEntry{value: value, expires: now.Add(ttl), accessed: now}
}

func (c *Memory) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Memory) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = int64(len(c.entries))
	return s
}

func (c *Memory) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// evictLRU removes the least recently accessed entry. Caller holds the
// write lock.
func (c *Memory) evictLRU() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.accessed.Before(oldest) {
			oldest = e.accessed
			oldestKey = key
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

func (c *Memory) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Memory) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
		}
	}
}
