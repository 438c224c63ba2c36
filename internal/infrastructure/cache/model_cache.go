// Package cache holds the fitted-model cache and the webhook idempotency
// stores.
package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/infrastructure/forecasting"
)

// ModelKey identifies one cached model per household+child
type ModelKey struct {
	HouseholdID uuid.UUID
	ChildID     uuid.UUID
}

// cachedModel pairs a fitted model with its fit time for TTL eviction
type cachedModel struct {
	model    *forecasting.Model
	fittedAt time.Time
}

// ModelCache is an explicit per-key cache of fitted forecast models with TTL
// eviction and per-key fit locks. Concurrent refits for the same key are
// serialized; different keys fit in parallel.
type ModelCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[ModelKey]cachedModel

	lockMu sync.Mutex
	locks  map[ModelKey]*sync.Mutex
}

// NewModelCache creates a model cache with the given TTL
func NewModelCache(ttl time.Duration) *ModelCache {
	return &ModelCache{
		ttl:     ttl,
		entries: make(map[ModelKey]cachedModel),
		locks:   make(map[ModelKey]*sync.Mutex),
	}
}

// Get returns the cached model for a key if present and fresh
func (c *ModelCache) Get(key ModelKey) (*forecasting.Model, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(entry.fittedAt) > c.ttl {
		return nil, false
	}
	return entry.model, true
}

// Put stores a freshly fitted model for a key
func (c *ModelCache) Put(key ModelKey, model *forecasting.Model) {
	c.mu.Lock()
	c.entries[key] = cachedModel{model: model, fittedAt: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops the cached model for a key
func (c *ModelCache) Invalidate(key ModelKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// keyLock returns the dedicated mutex for a key, creating it on first use
func (c *ModelCache) keyLock(key ModelKey) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// GetOrFit returns the cached model for a key, fitting one under the key's
// lock when missing or stale. If a concurrent caller fitted while this one
// waited, the fresh model is reused and fit is skipped.
func (c *ModelCache) GetOrFit(key ModelKey, fit func() (*forecasting.Model, error)) (*forecasting.Model, error) {
	if m, ok := c.Get(key); ok {
		return m, nil
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the key lock
	if m, ok := c.Get(key); ok {
		return m, nil
	}

	m, err := fit()
	if err != nil {
		return nil, err
	}
	c.Put(key, m)
	return m, nil
}

// Evict removes all stale entries, returning how many were dropped
func (c *ModelCache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, entry := range c.entries {
		if time.Since(entry.fittedAt) > c.ttl {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Size returns the number of cached models (for testing/monitoring)
func (c *ModelCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
