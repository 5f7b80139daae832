// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MadsRC/sixlab"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *goredis.Client) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, container.Terminate(ctx))
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, WithKeyPrefix("test:"+t.Name()+":")), client
}

func TestRedisStore_IncrementBelow(t *testing.T) {
	store, client := newTestRedisStore(t)
	ctx := context.Background()

	var generation string
	for i := range 3 {
		slot, ok, err := store.IncrementBelow(ctx, "mock:minute", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(i+1), slot.Count)
		if i == 0 {
			generation = slot.Generation
		}
		assert.Equal(t, generation, slot.Generation)
	}
	assert.NotEmpty(t, generation)

	slot, ok, err := store.IncrementBelow(ctx, "mock:minute", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), slot.Count)

	ttl, err := client.PTTL(ctx, "test:"+t.Name()+":mock:minute").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStore_DecrementAndGet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	v, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	slot, ok, err := store.IncrementBelow(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Decrement(ctx, "k", slot.Generation))
	require.NoError(t, store.Decrement(ctx, "k", slot.Generation))

	v, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestRedisStore_DecrementSkipsExpiredWindow(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	stale, ok, err := store.IncrementBelow(ctx, "mock:minute", 5, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		v, _ := store.Get(ctx, "mock:minute")
		return v == 0
	}, 2*time.Second, 10*time.Millisecond)

	fresh, ok, err := store.IncrementBelow(ctx, "mock:minute", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, stale.Generation, fresh.Generation)

	require.NoError(t, store.Decrement(ctx, "mock:minute", stale.Generation))
	v, err := store.Get(ctx, "mock:minute")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestRedisStore_ConcurrentReserve(t *testing.T) {
	store, _ := newTestRedisStore(t)
	limiter := NewLimiter(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limiter.Reserve(ctx, "mock", sixlab.WindowMinute, 3); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), succeeded.Load())
}
