// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package sixlab

import (
	"context"
	"encoding/json"
	"time"
)

// UsageStats is the cumulative usage of a provider for the current calendar month
type UsageStats struct {
	TotalTokens   int64     `json:"total_tokens"`
	TotalCost     float64   `json:"total_cost"`
	TotalRequests int64     `json:"total_requests"`
	LastReset     time.Time `json:"last_reset"`
}

// SameMonth reports whether t falls in the same UTC calendar month as LastReset
func (s UsageStats) SameMonth(t time.Time) bool {
	a, b := s.LastReset.UTC(), t.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// UsageStatsStore persists UsageStats per provider type
type UsageStatsStore interface {
	// GetUsageStats returns the stats of providerType, or ErrNotFound if none were recorded yet
	GetUsageStats(ctx context.Context, providerType string) (UsageStats, error)

	// UpdateUsageStats atomically loads the current stats of providerType, applies fn and
	// persists the result. exists is false when no stats were recorded before.
	UpdateUsageStats(ctx context.Context, providerType string, fn func(current UsageStats, exists bool) UsageStats) (UsageStats, error)
}

// Interaction statuses
const (
	InteractionStatusSuccess = "success"
	InteractionStatusFailed  = "failed"
)

// InteractionRecord is the audit entry emitted for every AI call that reached the transport
type InteractionRecord struct {
	ID              string          `json:"id"`
	Provider        string          `json:"provider"`
	InteractionType Operation       `json:"interaction_type"`
	Model           string          `json:"model,omitempty"`
	RequestData     json.RawMessage `json:"request_data,omitempty"`
	ResponseData    json.RawMessage `json:"response_data,omitempty"`
	TokensUsed      int64           `json:"tokens_used"`
	InputTokens     int64           `json:"input_tokens"`
	OutputTokens    int64           `json:"output_tokens"`
	CostUSD         float64         `json:"cost_usd"`
	ResponseTimeMs  int64           `json:"response_time_ms"`
	Status          string          `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// InteractionLogger receives interaction records. Implementations must not block the caller for long.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, record InteractionRecord)
}

// InteractionRepository defines persistence operations for interaction records
type InteractionRepository interface {
	// CreateInteraction stores a new interaction record
	CreateInteraction(ctx context.Context, record *InteractionRecord) error

	// ListInteractionsByProvider returns the most recent interactions of a provider
	ListInteractionsByProvider(ctx context.Context, providerType string, limit, offset int) ([]*InteractionRecord, error)
}

// BudgetExceededEvent is raised when the monthly cost of a provider reaches the budget
type BudgetExceededEvent struct {
	Provider  string    `json:"provider"`
	TotalCost float64   `json:"total_cost"`
	Budget    float64   `json:"budget"`
	Timestamp time.Time `json:"timestamp"`
}

// BudgetObserver is notified about budget overruns. The signal is advisory.
type BudgetObserver interface {
	BudgetExceeded(ctx context.Context, event BudgetExceededEvent)
}

// BudgetObserverFunc adapts a function to BudgetObserver
type BudgetObserverFunc func(ctx context.Context, event BudgetExceededEvent)

func (f BudgetObserverFunc) BudgetExceeded(ctx context.Context, event BudgetExceededEvent) {
	f(ctx, event)
}

// InteractionLoggerFunc adapts a function to InteractionLogger
type InteractionLoggerFunc func(ctx context.Context, record InteractionRecord)

func (f InteractionLoggerFunc) LogInteraction(ctx context.Context, record InteractionRecord) {
	f(ctx, record)
}
