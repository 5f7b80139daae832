// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MadsRC/sixlab"
)

func newTestMetrics(t *testing.T) (*AIMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	tm, err := NewTelemetryManagerWithReader(TelemetryConfig{ServiceName: "sixlab-test", ServiceVersion: "test"}, reader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Shutdown(context.Background()) })

	m, err := NewAIMetrics(tm.GetMeter(MeterName))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestAIMetrics_RecordInteraction(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInteraction(ctx, "openai", sixlab.OperationChat, sixlab.InteractionStatusSuccess, 100, 50, 0.00075, 250*time.Millisecond)
	m.RecordInteraction(ctx, "openai", sixlab.OperationChat, sixlab.InteractionStatusFailed, 0, 0, 0, time.Second)

	metrics := collect(t, reader)

	assert.Equal(t, int64(2), sumInt(t, metrics["ai_interactions_total"]))
	assert.Equal(t, int64(150), sumInt(t, metrics["ai_tokens_total"]))

	cost, ok := metrics["ai_cost_usd_total"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, cost.DataPoints, 1)
	assert.InDelta(t, 0.00075, cost.DataPoints[0].Value, 1e-12)

	latency, ok := metrics["ai_response_latency_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range latency.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestAIMetrics_RateLimitAndBudget(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRateLimitRejection(ctx, "mock", sixlab.WindowMinute)
	m.RecordRateLimitRejection(ctx, "mock", sixlab.WindowMinute)
	m.BudgetExceeded(ctx, sixlab.BudgetExceededEvent{Provider: "mock", TotalCost: 101, Budget: 100})
	m.RecordInteractionDropped(ctx)
	m.RecordInteractionLogError(ctx, "postgres")

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumInt(t, metrics["ai_rate_limit_rejections_total"]))
	assert.Equal(t, int64(1), sumInt(t, metrics["ai_budget_exceeded_total"]))
	assert.Equal(t, int64(1), sumInt(t, metrics["ai_interaction_logs_dropped_total"]))
	assert.Equal(t, int64(1), sumInt(t, metrics["ai_interaction_log_write_errors_total"]))
}

func TestAIMetrics_UsageSnapshot(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUsageSnapshot(ctx, "anthropic", sixlab.UsageStats{TotalTokens: 1234, TotalCost: 1.5})
	m.UpdateLogQueueSize(ctx, 7)

	metrics := collect(t, reader)

	cost, ok := metrics["ai_monthly_cost_usd"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, cost.DataPoints, 1)
	assert.Equal(t, 1.5, cost.DataPoints[0].Value)

	tokens, ok := metrics["ai_monthly_tokens"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, tokens.DataPoints, 1)
	assert.Equal(t, int64(1234), tokens.DataPoints[0].Value)

	queue, ok := metrics["ai_interaction_log_queue_size"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(7), queue.DataPoints[0].Value)
}
