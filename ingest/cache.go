package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// CACHE
// =============================================================================

// Cache stores fetched tables by name.
type Cache interface {
	// Get returns the table and true on a hit.
	Get(ctx context.Context, name string) (*generic.Table, bool, error)
	Set(ctx context.Context, name string, t *generic.Table, ttl time.Duration) error
}

// Cached wraps a source with a cache. Cache errors are logged and fall
// through to the source.
func Cached(src Source, cache Cache, ttl time.Duration, logger *slog.Logger) Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedSource{src: src, cache: cache, ttl: ttl, log: logger}
}

type cachedSource struct {
	src   Source
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

func (c *cachedSource) Fetch(ctx context.Context, name string) (*generic.Table, error) {
	t, ok, err := c.cache.Get(ctx, name)
	if err != nil {
		c.log.Warn("cache read failed", "table", name, "error", err)
	}
	if ok {
		return t, nil
	}
	t, err = c.src.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, name, t, c.ttl); err != nil {
		c.log.Warn("cache write failed", "table", name, "error", err)
	}
	return t, nil
}

// =============================================================================
// MEMORY CACHE
// =============================================================================

// MemoryCache keeps tables in process. Tables are shared, not copied:
// callers must treat them as read-only.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	table   *generic.Table
	expires time.Time // zero never expires
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, name string) (*generic.Table, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok || (!e.expires.IsZero() && m.now().After(e.expires)) {
		return nil, false, nil
	}
	return e.table, true, nil
}

// Set stores t. ttl <= 0 never expires.
func (m *MemoryCache) Set(_ context.Context, name string, t *generic.Table, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{table: t}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[name] = e
	return nil
}

// Invalidate drops every entry.
func (m *MemoryCache) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
}

// =============================================================================
// REDIS CACHE
// =============================================================================

// RedisCache stores tables as JSON under Prefix+name.
type RedisCache struct {
	Client *redis.Client
	Prefix string
}

// NewRedis connects to addr.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "portinv:table:"
	}
	return &RedisCache{Client: client, Prefix: prefix}
}

type tablePayload struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (r *RedisCache) Get(ctx context.Context, name string) (*generic.Table, bool, error) {
	data, err := r.Client.Get(ctx, r.Prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", name, err)
	}
	var p tablePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("decode cached %s: %w", name, err)
	}
	return generic.NewTable(p.Name, p.Columns, p.Rows), true, nil
}

func (r *RedisCache) Set(ctx context.Context, name string, t *generic.Table, ttl time.Duration) error {
	data, err := json.Marshal(tablePayload{Name: t.Name, Columns: t.Columns, Rows: t.Rows})
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.Client.Set(ctx, r.Prefix+name, data, ttl).Err()
}
