// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package ratelimit

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MadsRC/sixlab/internal/cache"
)

// CounterStore holds expiring request counters shared by all providers.
// Every method must be safe for concurrent use, and IncrementBelow must
// perform its comparison and increment as one atomic step.
//
// A counter has a generation that is fixed when the counter is created and
// dropped when it expires. It lets a reservation be given back only to the
// window it was taken from.
type CounterStore interface {
	// Get returns the current value of key, or 0 if absent or expired.
	Get(ctx context.Context, key string) (int64, error)

	// Increment adds one to key and resets its TTL to ttl from now.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// IncrementBelow adds one to key and resets its TTL only if the current
	// value is below ceiling. It returns the resulting slot and whether the
	// increment happened.
	IncrementBelow(ctx context.Context, key string, ceiling int64, ttl time.Duration) (Slot, bool, error)

	// Decrement subtracts one from key without touching its TTL, provided
	// the live counter still has the given generation. Missing keys, keys of
	// another generation and keys already at zero are left alone.
	Decrement(ctx context.Context, key, generation string) error
}

// Slot is the counter state after a successful IncrementBelow.
type Slot struct {
	Count      int64
	Generation string
}

type counter struct {
	n   int64
	gen uint64
}

// MemoryStore is a process-local CounterStore.
type MemoryStore struct {
	counters *cache.Cache[string, counter]
	nextGen  atomic.Uint64
}

var _ CounterStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory counter store. Expired counters are
// swept every sweepInterval; pass 0 for one minute.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &MemoryStore{counters: cache.New[string, counter](sweepInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	c, _ := s.counters.Get(key)
	return c.n, nil
}

func (s *MemoryStore) bump(current counter, found bool) counter {
	if !found {
		current = counter{gen: s.nextGen.Add(1)}
	}
	current.n++
	return current
}

func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c, _ := s.counters.Update(key, ttl, func(current counter, found bool) (counter, bool) {
		return s.bump(current, found), true
	})
	return c.n, nil
}

func (s *MemoryStore) IncrementBelow(_ context.Context, key string, ceiling int64, ttl time.Duration) (Slot, bool, error) {
	c, stored := s.counters.Update(key, ttl, func(current counter, found bool) (counter, bool) {
		if current.n >= ceiling {
			return current, false
		}
		return s.bump(current, found), true
	})
	return Slot{Count: c.n, Generation: strconv.FormatUint(c.gen, 10)}, stored, nil
}

func (s *MemoryStore) Decrement(_ context.Context, key, generation string) error {
	s.counters.Update(key, 0, func(current counter, found bool) (counter, bool) {
		if !found || current.n <= 0 || strconv.FormatUint(current.gen, 10) != generation {
			return current, false
		}
		current.n--
		return current, true
	})
	return nil
}

// Close stops the background sweep.
func (s *MemoryStore) Close() {
	s.counters.Close()
}
