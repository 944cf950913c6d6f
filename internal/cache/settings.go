package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FetchFunc loads a settings value from the persistence layer on cache miss.
type FetchFunc func(ctx context.Context) (any, error)

type settingsEntry struct {
	value     any
	fetchedAt time.Time
}

// SettingsCache is a read-through cache for low-churn configuration records.
// A failed fetch falls back to the last known value, even if expired, so a
// persistence hiccup never fails an inbound event. Refresh is lazy: nothing
// happens in the background, the next read after expiry re-fetches.
type SettingsCache struct {
	mu      sync.Mutex
	entries map[string]settingsEntry
	ttl     time.Duration
	logger  *zap.Logger
}

func NewSettingsCache(ttl time.Duration, logger *zap.Logger) *SettingsCache {
	return &SettingsCache{
		entries: make(map[string]settingsEntry),
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the cached value for key if it is younger than the TTL,
// otherwise fetches, stores and returns a fresh one. The lock is held across
// the fetch so concurrent readers of the same key observe a single fetch.
func (c *SettingsCache) Get(ctx context.Context, key string, fetch FetchFunc) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, cached := c.entries[key]
	if cached && time.Since(entry.fetchedAt) < c.ttl {
		return entry.value
	}

	value, err := fetch(ctx)
	if err != nil {
		c.logger.Error("Failed to fetch settings, using stale value",
			zap.Error(err),
			zap.String("key", key))
		if cached {
			return entry.value
		}
		return nil
	}

	c.entries[key] = settingsEntry{value: value, fetchedAt: time.Now()}
	return value
}

// Invalidate drops the cached value for key. Configuration commands call this
// after a write so the next read observes the new record.
func (c *SettingsCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops everything.
func (c *SettingsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]settingsEntry)
}
