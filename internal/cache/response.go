package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ppiankov/claimcheck/internal/model"
	"go.uber.org/zap"
)

const (
	DefaultResponseTTL = 300 * time.Second
	DefaultMaxEntries  = 500
)

// ResponseCache memoizes query results keyed by normalized query and top-k.
// Expiry is judged against the injected clock.
type ResponseCache struct {
	store      Cache
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger

	mu     sync.Mutex
	hits   int64
	misses int64
}

// ResponseOption configures a ResponseCache.
type ResponseOption func(*ResponseCache)

// WithTTL sets how long a result stays fresh.
func WithTTL(ttl time.Duration) ResponseOption {
	return func(c *ResponseCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the number of cached results.
func WithMaxEntries(n int) ResponseOption {
	return func(c *ResponseCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ResponseOption {
	return func(c *ResponseCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ResponseOption {
	return func(c *ResponseCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	TTLSeconds float64 `json:"ttl_seconds"`
}

type responseEntry struct {
	StoredAt time.Time          `json:"stored_at"`
	Result   *model.QueryResult `json:"result"`
}

// NewResponseCache wraps store; a nil store uses a MemoryCache.
func NewResponseCache(store Cache, opts ...ResponseOption) *ResponseCache {
	if store == nil {
		store = NewMemoryCache(0, 10*time.Minute)
	}
	c := &ResponseCache{
		store:      store,
		ttl:        DefaultResponseTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached result when it is still fresh.
func (c *ResponseCache) Get(query string, topK int) (*model.QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := CacheKey(query, topK)
	entry, ok := c.load(key)
	if !ok || c.expired(entry) {
		if ok {
			_ = c.store.Delete(key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.Result, true
}

// Set stores result. When the cache is full, expired entries are evicted
// first and everything is cleared if that frees nothing.
func (c *ResponseCache) Set(query string, topK int, result *model.QueryResult) {
	if result == nil {
		return
	}
	data, err := json.Marshal(responseEntry{StoredAt: c.now(), Result: result})
	if err != nil {
		c.logger.Warn("cache encode failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := CacheKey(query, topK)
	if _, exists := c.store.Get(key); !exists && len(c.store.Keys()) >= c.maxEntries {
		evicted := c.evictExpired()
		if len(c.store.Keys()) >= c.maxEntries {
			_ = c.store.Clear()
			c.logger.Debug("response cache cleared", zap.Int("max_entries", c.maxEntries))
		} else {
			c.logger.Debug("expired responses evicted", zap.Int("evicted", evicted))
		}
	}

	if err := c.store.Set(key, data, c.ttl); err != nil {
		c.logger.Warn("cache store failed", zap.Error(err))
	}
}

// Clear drops every entry and resets counters.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.store.Clear()
	c.hits, c.misses = 0, 0
}

// Stats returns hit and size counters.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		Entries:    len(c.store.Keys()),
		MaxEntries: c.maxEntries,
		TTLSeconds: c.ttl.Seconds(),
	}
}

func (c *ResponseCache) load(key string) (responseEntry, bool) {
	data, ok := c.store.Get(key)
	if !ok {
		return responseEntry{}, false
	}
	var entry responseEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		return responseEntry{}, false
	}
	return entry, true
}

func (c *ResponseCache) expired(e responseEntry) bool {
	return c.now().Sub(e.StoredAt) >= c.ttl
}

func (c *ResponseCache) evictExpired() int {
	evicted := 0
	for _, key := range c.store.Keys() {
		entry, ok := c.load(key)
		if !ok || c.expired(entry) {
			_ = c.store.Delete(key)
			evicted++
		}
	}
	return evicted
}
