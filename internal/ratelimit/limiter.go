// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ratelimit caps the number of AI requests a provider may issue per
// minute, hour and day.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MadsRC/sixlab"
)

// Limits holds the request ceiling of every window.
type Limits map[sixlab.RateWindow]int64

// DefaultLimits are used for windows a provider config does not override.
var DefaultLimits = Limits{
	sixlab.WindowMinute: 20,
	sixlab.WindowHour:   100,
	sixlab.WindowDay:    500,
}

// LimitsFromConfig resolves the ceilings of a provider config, falling back
// to DefaultLimits for absent or non-positive values.
func LimitsFromConfig(cfg sixlab.ProviderConfig) Limits {
	limits := make(Limits, len(sixlab.RateWindows))
	for _, w := range sixlab.RateWindows {
		v := cfg.GetInt(w.ConfigKey(), 0)
		if v <= 0 {
			v = DefaultLimits[w]
		}
		limits[w] = v
	}
	return limits
}

// Ceiling returns the ceiling of w.
func (l Limits) Ceiling(w sixlab.RateWindow) int64 {
	if v, ok := l[w]; ok && v > 0 {
		return v
	}
	return DefaultLimits[w]
}

// Reservation is a counted request slot that may be given back with Release.
// Generation identifies the window instance the slot was taken from.
type Reservation struct {
	Provider   string
	Window     sixlab.RateWindow
	Count      int64
	Generation string
}

// Limiter enforces per-provider, per-window request ceilings on top of a CounterStore.
type Limiter struct {
	store  CounterStore
	logger *slog.Logger
}

// LimiterOption configures Limiter behavior
type LimiterOption func(*Limiter)

// WithLimiterLogger sets the logger for the limiter
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// NewLimiter creates a Limiter that keeps its counters in store
func NewLimiter(store CounterStore, options ...LimiterOption) *Limiter {
	l := &Limiter{
		store:  store,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(l)
	}

	return l
}

// CounterKey is the store key of the counter for provider and window.
func CounterKey(provider string, window sixlab.RateWindow) string {
	return fmt.Sprintf("%s:%s", provider, window)
}

// Count returns the current counter of provider in window.
func (l *Limiter) Count(ctx context.Context, provider string, window sixlab.RateWindow) (int64, error) {
	return l.store.Get(ctx, CounterKey(provider, window))
}

// Check reports whether provider is below ceiling in window without counting a request.
func (l *Limiter) Check(ctx context.Context, provider string, window sixlab.RateWindow, ceiling int64) error {
	count, err := l.Count(ctx, provider, window)
	if err != nil {
		return fmt.Errorf("failed to read rate counter: %w", err)
	}
	if count >= ceiling {
		return &sixlab.RateLimitError{Provider: provider, Limit: ceiling, Window: window}
	}
	return nil
}

// Increment counts a request against window and restarts the window's TTL.
func (l *Limiter) Increment(ctx context.Context, provider string, window sixlab.RateWindow) (int64, error) {
	count, err := l.store.Increment(ctx, CounterKey(provider, window), window.TTL())
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	return count, nil
}

// Reserve atomically checks the ceiling and counts a request. Concurrent
// callers can never push the counter past ceiling.
func (l *Limiter) Reserve(ctx context.Context, provider string, window sixlab.RateWindow, ceiling int64) (Reservation, error) {
	slot, ok, err := l.store.IncrementBelow(ctx, CounterKey(provider, window), ceiling, window.TTL())
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to reserve rate counter: %w", err)
	}
	if !ok {
		l.logger.Warn("Rate limit exceeded",
			"provider", provider,
			"window", window,
			"limit", ceiling)
		return Reservation{}, &sixlab.RateLimitError{Provider: provider, Limit: ceiling, Window: window}
	}
	return Reservation{Provider: provider, Window: window, Count: slot.Count, Generation: slot.Generation}, nil
}

// Release gives back a reservation whose request never completed. A
// reservation whose window has expired in the meantime is not given back.
func (l *Limiter) Release(ctx context.Context, res Reservation) error {
	if res.Provider == "" {
		return nil
	}
	if err := l.store.Decrement(ctx, CounterKey(res.Provider, res.Window), res.Generation); err != nil {
		return fmt.Errorf("failed to release rate counter: %w", err)
	}
	return nil
}
