// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package memstore provides process-local implementations of the option and
// usage statistics stores, for single-instance deployments and tests.
package memstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/MadsRC/sixlab"
)

// ConfigStore keeps options in memory.
type ConfigStore struct {
	mu      sync.RWMutex
	options map[string]json.RawMessage
}

var _ sixlab.ConfigStore = (*ConfigStore)(nil)

// NewConfigStore creates an empty ConfigStore
func NewConfigStore() *ConfigStore {
	return &ConfigStore{options: make(map[string]json.RawMessage)}
}

func (s *ConfigStore) GetOption(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.options[key]
	if !ok {
		return nil, sixlab.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *ConfigStore) SetOption(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options[key] = slices.Clone(value)
	return nil
}

// UsageStatsStore keeps usage statistics in memory. Updates are serialized by
// a single mutex.
type UsageStatsStore struct {
	mu    sync.Mutex
	stats map[string]sixlab.UsageStats
}

var _ sixlab.UsageStatsStore = (*UsageStatsStore)(nil)

// NewUsageStatsStore creates an empty UsageStatsStore
func NewUsageStatsStore() *UsageStatsStore {
	return &UsageStatsStore{stats: make(map[string]sixlab.UsageStats)}
}

func (s *UsageStatsStore) GetUsageStats(_ context.Context, providerType string) (sixlab.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[providerType]
	if !ok {
		return sixlab.UsageStats{}, sixlab.ErrNotFound
	}
	return stats, nil
}

func (s *UsageStatsStore) UpdateUsageStats(_ context.Context, providerType string, fn func(sixlab.UsageStats, bool) sixlab.UsageStats) (sixlab.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.stats[providerType]
	next := fn(current, exists)
	s.stats[providerType] = next
	return next, nil
}
