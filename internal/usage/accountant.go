// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package usage accounts the token usage and cost of AI providers per
// calendar month and raises the advisory budget signal.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MadsRC/sixlab"
)

// DefaultMonthlyBudget applies when no budget is configured.
const DefaultMonthlyBudget = 100.0

// costPrecision is the number of decimal places costs are rounded to.
const costPrecision = 1e8

// Rates are the prices of input and output tokens, per 1000 tokens.
type Rates struct {
	Input  float64
	Output float64
}

// RatesFromConfig reads the token rates of a provider config.
func RatesFromConfig(cfg sixlab.ProviderConfig) Rates {
	return Rates{
		Input:  cfg.GetFloat(sixlab.ConfigInputTokenRate, 0),
		Output: cfg.GetFloat(sixlab.ConfigOutputTokenRate, 0),
	}
}

// CalculateCost returns (in*Input + out*Output) / 1000, rounded to 8 decimal places.
func CalculateCost(inputTokens, outputTokens int64, rates Rates) (float64, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return 0, fmt.Errorf("%w: token counts must be non-negative (input=%d, output=%d)",
			sixlab.ErrInvalidArgument, inputTokens, outputTokens)
	}
	if rates.Input < 0 || rates.Output < 0 {
		return 0, fmt.Errorf("%w: token rates must be non-negative", sixlab.ErrInvalidArgument)
	}
	cost := (float64(inputTokens)*rates.Input + float64(outputTokens)*rates.Output) / 1000
	return roundCost(cost), nil
}

func roundCost(v float64) float64 {
	return math.Round(v*costPrecision) / costPrecision
}

// RecordResult is the outcome of Accountant.RecordUsage.
type RecordResult struct {
	Stats          sixlab.UsageStats
	Budget         float64
	BudgetExceeded bool
	Reset          bool
}

// Accountant keeps the monthly usage statistics of every provider.
type Accountant struct {
	stats         sixlab.UsageStatsStore
	config        sixlab.ConfigStore
	observers     []sixlab.BudgetObserver
	defaultBudget float64
	logger        *slog.Logger
	now           func() time.Time
}

// AccountantOption configures Accountant behavior
type AccountantOption func(*Accountant)

// WithAccountantLogger sets the logger for the accountant
func WithAccountantLogger(logger *slog.Logger) AccountantOption {
	return func(a *Accountant) {
		a.logger = logger
	}
}

// WithConfigStore sets the store the monthly budget is read from
func WithConfigStore(store sixlab.ConfigStore) AccountantOption {
	return func(a *Accountant) {
		a.config = store
	}
}

// WithBudgetObserver registers observers of the budget exceeded signal
func WithBudgetObserver(observers ...sixlab.BudgetObserver) AccountantOption {
	return func(a *Accountant) {
		a.observers = append(a.observers, observers...)
	}
}

// WithDefaultBudget overrides DefaultMonthlyBudget
func WithDefaultBudget(budget float64) AccountantOption {
	return func(a *Accountant) {
		a.defaultBudget = budget
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) AccountantOption {
	return func(a *Accountant) {
		a.now = now
	}
}

// NewAccountant creates an Accountant persisting into stats
func NewAccountant(stats sixlab.UsageStatsStore, options ...AccountantOption) *Accountant {
	a := &Accountant{
		stats:         stats,
		defaultBudget: DefaultMonthlyBudget,
		logger:        slog.Default(),
		now:           time.Now,
	}

	for _, opt := range options {
		opt(a)
	}

	return a
}

// RecordUsage adds one request with tokens and cost to the provider's stats.
// When the current UTC month differs from the month of the last reset, the
// previous accumulation is discarded and the stats restart from this call.
// Reaching the monthly budget notifies every observer once; the call itself
// still succeeds.
func (a *Accountant) RecordUsage(ctx context.Context, providerType string, tokens int64, cost float64) (RecordResult, error) {
	if tokens < 0 || cost < 0 || math.IsNaN(cost) {
		return RecordResult{}, fmt.Errorf("%w: tokens and cost must be non-negative (tokens=%d, cost=%v)",
			sixlab.ErrInvalidArgument, tokens, cost)
	}

	now := a.now().UTC()
	reset := false
	stats, err := a.stats.UpdateUsageStats(ctx, providerType, func(current sixlab.UsageStats, exists bool) sixlab.UsageStats {
		if !exists || !current.SameMonth(now) {
			reset = true
			return sixlab.UsageStats{
				TotalTokens:   tokens,
				TotalCost:     roundCost(cost),
				TotalRequests: 1,
				LastReset:     now,
			}
		}
		reset = false
		current.TotalTokens += tokens
		current.TotalCost = roundCost(current.TotalCost + cost)
		current.TotalRequests++
		return current
	})
	if err != nil {
		return RecordResult{}, fmt.Errorf("failed to record usage for provider %s: %w", providerType, err)
	}

	if reset {
		a.logger.Debug("Usage statistics started a new month", "provider", providerType, "lastReset", stats.LastReset)
	}

	budget := a.MonthlyBudget(ctx)
	result := RecordResult{Stats: stats, Budget: budget, Reset: reset}
	if stats.TotalCost >= budget {
		result.BudgetExceeded = true
		a.notifyBudgetExceeded(ctx, sixlab.BudgetExceededEvent{
			Provider:  providerType,
			TotalCost: stats.TotalCost,
			Budget:    budget,
			Timestamp: now,
		})
	}

	return result, nil
}

func (a *Accountant) notifyBudgetExceeded(ctx context.Context, event sixlab.BudgetExceededEvent) {
	for _, o := range a.observers {
		o.BudgetExceeded(ctx, event)
	}
}

// GetUsageStats returns the provider's stats, or zero stats if nothing was recorded.
func (a *Accountant) GetUsageStats(ctx context.Context, providerType string) (sixlab.UsageStats, error) {
	stats, err := a.stats.GetUsageStats(ctx, providerType)
	if errors.Is(err, sixlab.ErrNotFound) {
		return sixlab.UsageStats{}, nil
	}
	if err != nil {
		return sixlab.UsageStats{}, fmt.Errorf("failed to get usage stats for provider %s: %w", providerType, err)
	}
	return stats, nil
}

// MonthlyBudget reads the configured budget, falling back to the default when
// it is unset or unreadable.
func (a *Accountant) MonthlyBudget(ctx context.Context) float64 {
	if a.config == nil {
		return a.defaultBudget
	}

	raw, err := a.config.GetOption(ctx, sixlab.OptionMonthlyBudget)
	if err != nil {
		if !errors.Is(err, sixlab.ErrNotFound) {
			a.logger.Warn("Failed to read monthly budget, using default", "error", err, "default", a.defaultBudget)
		}
		return a.defaultBudget
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		a.logger.Warn("Invalid monthly budget, using default", "error", err, "default", a.defaultBudget)
		return a.defaultBudget
	}
	budget, ok := sixlab.ToFloat(v)
	if !ok || budget < 0 {
		a.logger.Warn("Invalid monthly budget, using default", "value", string(raw), "default", a.defaultBudget)
		return a.defaultBudget
	}
	return budget
}
