// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore is a CounterStore backed by Redis, for deployments where several
// processes share the same provider ceilings.
type RedisStore struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ CounterStore = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "sixlab:ratelimit:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedisStore creates a Redis-backed counter store.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func NewRedisStore(client goredis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "sixlab:ratelimit:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Counters are hashes with the count in field "n" and the generation in
// field "g". The generation is written once, when the counter is created.

// incrementScript increments a counter and resets its expiry.
// KEYS[1] = counter key
// ARGV[1] = ttl in milliseconds
// ARGV[2] = generation for a new counter
var incrementScript = goredis.NewScript(`
redis.call("HSETNX", KEYS[1], "g", ARGV[2])
local v = redis.call("HINCRBY", KEYS[1], "n", 1)
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[1]))
return v
`)

// incrementBelowScript increments a counter only while it is below a ceiling.
// KEYS[1] = counter key
// ARGV[1] = ceiling
// ARGV[2] = ttl in milliseconds
// ARGV[3] = generation for a new counter
//
// Returns {new value, generation}, or {-1, ""} when the ceiling was reached.
var incrementBelowScript = goredis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], "n") or "0")
if current >= tonumber(ARGV[1]) then
    return {-1, ""}
end
redis.call("HSETNX", KEYS[1], "g", ARGV[3])
local v = redis.call("HINCRBY", KEYS[1], "n", 1)
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[2]))
return {v, redis.call("HGET", KEYS[1], "g")}
`)

// decrementScript lowers a live counter of the given generation by one,
// keeping its expiry.
// KEYS[1] = counter key
// ARGV[1] = generation
var decrementScript = goredis.NewScript(`
if redis.call("HGET", KEYS[1], "g") ~= ARGV[1] then
    return 0
end
local current = tonumber(redis.call("HGET", KEYS[1], "n") or "0")
if current <= 0 then
    return 0
end
return redis.call("HINCRBY", KEYS[1], "n", -1)
`)

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.client.HGet(ctx, s.key(key), "n").Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sixlab/redis: get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	v, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, ttl.Milliseconds(), uuid.NewString()).Int64()
	if err != nil {
		return 0, fmt.Errorf("sixlab/redis: increment: %w", err)
	}
	return v, nil
}

func (s *RedisStore) IncrementBelow(ctx context.Context, key string, ceiling int64, ttl time.Duration) (Slot, bool, error) {
	res, err := incrementBelowScript.Run(ctx, s.client, []string{s.key(key)}, ceiling, ttl.Milliseconds(), uuid.NewString()).Slice()
	if err != nil {
		return Slot{}, false, fmt.Errorf("sixlab/redis: increment below: %w", err)
	}
	if len(res) != 2 {
		return Slot{}, false, fmt.Errorf("sixlab/redis: increment below: unexpected reply %v", res)
	}
	v, ok := res[0].(int64)
	if !ok {
		return Slot{}, false, fmt.Errorf("sixlab/redis: increment below: unexpected count %v", res[0])
	}
	if v < 0 {
		return Slot{Count: ceiling}, false, nil
	}
	gen, _ := res[1].(string)
	return Slot{Count: v, Generation: gen}, true, nil
}

func (s *RedisStore) Decrement(ctx context.Context, key, generation string) error {
	if err := decrementScript.Run(ctx, s.client, []string{s.key(key)}, generation).Err(); err != nil {
		return fmt.Errorf("sixlab/redis: decrement: %w", err)
	}
	return nil
}
