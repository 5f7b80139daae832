// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_BasicOperations(t *testing.T) {
	cache := New[string, string](time.Minute)
	defer cache.Close()

	cache.Set("provider:openai", "cfg1")
	value, found := cache.Get("provider:openai")
	require.True(t, found)
	assert.Equal(t, "cfg1", value)

	_, found = cache.Get("nonexistent")
	assert.False(t, found)

	cache.Set("provider:anthropic", "cfg2")
	assert.Equal(t, 2, cache.Size())

	cache.Delete("provider:openai")
	_, found = cache.Get("provider:openai")
	assert.False(t, found)
	assert.Equal(t, 1, cache.Size())
}

func TestCache_TTL(t *testing.T) {
	cache := New[string, string](100 * time.Millisecond)
	defer cache.Close()

	cache.Set("key1", "value1")

	value, found := cache.Get("key1")
	require.True(t, found)
	assert.Equal(t, "value1", value)

	time.Sleep(150 * time.Millisecond)

	_, found = cache.Get("key1")
	assert.False(t, found)
}

func TestCache_SetWithTTL(t *testing.T) {
	cache := New[string, int](time.Hour)
	defer cache.Close()

	cache.SetWithTTL("short", 1, 50*time.Millisecond)
	cache.Set("long", 2)

	time.Sleep(100 * time.Millisecond)

	_, found := cache.Get("short")
	assert.False(t, found)
	v, found := cache.Get("long")
	require.True(t, found)
	assert.Equal(t, 2, v)
}

func TestCache_EntryExpiration(t *testing.T) {
	entry := &Entry[string]{
		Value:     "test",
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	assert.True(t, entry.IsExpired())

	entry.ExpiresAt = time.Now().Add(time.Minute)
	assert.False(t, entry.IsExpired())
}

func TestCache_Cleanup(t *testing.T) {
	cache := New[string, string](50 * time.Millisecond)
	defer cache.Close()

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	assert.Equal(t, 2, cache.Size())

	assert.Eventually(t, func() bool {
		return cache.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCache_Update(t *testing.T) {
	cache := New[string, int64](time.Hour)
	defer cache.Close()

	incr := func(current int64, _ bool) (int64, bool) { return current + 1, true }

	v, stored := cache.Update("counter", time.Minute, incr)
	assert.True(t, stored)
	assert.Equal(t, int64(1), v)

	v, stored = cache.Update("counter", time.Minute, incr)
	assert.True(t, stored)
	assert.Equal(t, int64(2), v)

	v, stored = cache.Update("counter", 0, func(current int64, found bool) (int64, bool) {
		assert.True(t, found)
		return current, false
	})
	assert.False(t, stored)
	assert.Equal(t, int64(2), v)
}

func TestCache_UpdateKeepsExpiry(t *testing.T) {
	cache := New[string, int64](time.Hour)
	defer cache.Close()

	cache.SetWithTTL("counter", 5, 80*time.Millisecond)
	_, _ = cache.Update("counter", 0, func(current int64, _ bool) (int64, bool) { return current - 1, true })

	v, found := cache.Get("counter")
	require.True(t, found)
	assert.Equal(t, int64(4), v)

	time.Sleep(120 * time.Millisecond)
	_, found = cache.Get("counter")
	assert.False(t, found)
}

func TestCache_UpdateIsAtomic(t *testing.T) {
	cache := New[string, int64](time.Hour)
	defer cache.Close()

	const ceiling = 3
	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, stored := cache.Update("counter", time.Minute, func(current int64, _ bool) (int64, bool) {
				if current >= ceiling {
					return current, false
				}
				return current + 1, true
			})
			results <- stored
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for stored := range results {
		if stored {
			accepted++
		}
	}
	assert.Equal(t, ceiling, accepted)
	v, _ := cache.Get("counter")
	assert.Equal(t, int64(ceiling), v)
}
