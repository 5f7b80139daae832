// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"sync"
	"time"
)

// Entry represents a cached entry with expiration
type Entry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (e *Entry[T]) IsExpired() bool {
	return e.expiredAt(time.Now())
}

func (e *Entry[T]) expiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Cache is a generic in-memory cache with a default TTL and optional per-entry TTLs
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	entries  map[K]*Entry[V]
	ttl      time.Duration
	stopChan chan struct{}
	once     sync.Once
}

// New creates a new cache with the specified default TTL. Expired entries are
// swept every ttl until Close is called.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:  make(map[K]*Entry[V]),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// Get retrieves a value from the cache
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || entry.IsExpired() {
		var zero V
		return zero, false
	}

	return entry.Value, true
}

// Set stores a value in the cache with the default TTL
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value that expires after ttl
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &Entry[V]{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// UpdateFunc computes the next value of an entry. found is false when the
// key is absent or expired. Returning store=false leaves the entry untouched.
type UpdateFunc[V any] func(current V, found bool) (next V, store bool)

// Update runs fn under the cache's write lock, making read-modify-write
// sequences atomic. A stored value expires after ttl; ttl <= 0 keeps the
// existing expiry of a live entry and uses the default TTL for a new one.
// It returns the value held after the update and whether fn chose to store.
func (c *Cache[K, V]) Update(key K, ttl time.Duration, fn UpdateFunc[V]) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var current V
	entry, found := c.entries[key]
	if found && entry.expiredAt(now) {
		delete(c.entries, key)
		found = false
	}
	if found {
		current = entry.Value
	}

	next, store := fn(current, found)
	if !store {
		return current, false
	}

	expiresAt := now.Add(c.ttl)
	switch {
	case ttl > 0:
		expiresAt = now.Add(ttl)
	case found:
		expiresAt = entry.ExpiresAt
	}
	c.entries[key] = &Entry[V]{Value: next, ExpiresAt: expiresAt}

	return next, true
}

// Delete removes a value from the cache
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Size returns the number of entries in the cache, including expired entries
// that have not been swept yet
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close stops the cleanup goroutine
func (c *Cache[K, V]) Close() {
	c.once.Do(func() {
		close(c.stopChan)
	})
}

func (c *Cache[K, V]) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Cache[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if entry.expiredAt(now) {
			delete(c.entries, key)
		}
	}
}
