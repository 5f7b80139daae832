// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MadsRC/sixlab"
)

var _ sixlab.UsageStatsStore = (*UsageStatsRepository)(nil)

// GetUsageStats retrieves the usage statistics of a provider
func (r *UsageStatsRepository) GetUsageStats(ctx context.Context, providerType string) (sixlab.UsageStats, error) {
	query := `
		SELECT total_tokens, total_cost, total_requests, last_reset
		FROM ai_usage_stats
		WHERE provider_type = $1`

	var (
		stats     sixlab.UsageStats
		lastReset *time.Time
	)
	err := r.options.Db.QueryRow(ctx, query, providerType).Scan(
		&stats.TotalTokens,
		&stats.TotalCost,
		&stats.TotalRequests,
		&lastReset,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return sixlab.UsageStats{}, sixlab.ErrNotFound
	}
	if err != nil {
		r.options.Logger.Error("Failed to get usage stats", "error", err, "provider", providerType)
		return sixlab.UsageStats{}, err
	}
	// A row without last_reset was created by an update that never committed its values.
	if lastReset == nil {
		return sixlab.UsageStats{}, sixlab.ErrNotFound
	}
	stats.LastReset = lastReset.UTC()
	return stats, nil
}

// UpdateUsageStats applies fn to the stored statistics of a provider inside
// a transaction. The row is locked with SELECT ... FOR UPDATE, so concurrent
// updates from any number of processes are serialized.
func (r *UsageStatsRepository) UpdateUsageStats(ctx context.Context, providerType string, fn func(current sixlab.UsageStats, exists bool) sixlab.UsageStats) (sixlab.UsageStats, error) {
	tx, err := r.options.Db.Begin(ctx)
	if err != nil {
		return sixlab.UsageStats{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Make sure there is a row to lock.
	_, err = tx.Exec(ctx, `
		INSERT INTO ai_usage_stats (provider_type)
		VALUES ($1)
		ON CONFLICT (provider_type) DO NOTHING`, providerType)
	if err != nil {
		r.options.Logger.Error("Failed to prepare usage stats row", "error", err, "provider", providerType)
		return sixlab.UsageStats{}, err
	}

	var (
		current   sixlab.UsageStats
		lastReset *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT total_tokens, total_cost, total_requests, last_reset
		FROM ai_usage_stats
		WHERE provider_type = $1
		FOR UPDATE`, providerType).Scan(
		&current.TotalTokens,
		&current.TotalCost,
		&current.TotalRequests,
		&lastReset,
	)
	if err != nil {
		r.options.Logger.Error("Failed to lock usage stats", "error", err, "provider", providerType)
		return sixlab.UsageStats{}, err
	}
	exists := lastReset != nil
	if exists {
		current.LastReset = lastReset.UTC()
	}

	next := fn(current, exists)

	_, err = tx.Exec(ctx, `
		UPDATE ai_usage_stats
		SET total_tokens = $2, total_cost = $3, total_requests = $4, last_reset = $5, updated_at = NOW()
		WHERE provider_type = $1`,
		providerType,
		next.TotalTokens,
		next.TotalCost,
		next.TotalRequests,
		next.LastReset,
	)
	if err != nil {
		r.options.Logger.Error("Failed to update usage stats", "error", err, "provider", providerType)
		return sixlab.UsageStats{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return sixlab.UsageStats{}, fmt.Errorf("failed to commit usage stats: %w", err)
	}
	return next, nil
}
