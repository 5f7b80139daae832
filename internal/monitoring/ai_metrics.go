// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MadsRC/sixlab"
)

type AIMetrics struct {
	interactionsTotal    metric.Int64Counter
	tokensTotal          metric.Int64Counter
	costTotal            metric.Float64Counter
	responseLatency      metric.Float64Histogram
	rateLimitRejections  metric.Int64Counter
	budgetExceededTotal  metric.Int64Counter
	interactionsDropped  metric.Int64Counter
	interactionLogErrors metric.Int64Counter
	logQueueSize         metric.Int64Gauge
	monthlyCost          metric.Float64Gauge
	monthlyTokens        metric.Int64Gauge
}

var _ sixlab.BudgetObserver = (*AIMetrics)(nil)

func NewAIMetrics(meter metric.Meter) (*AIMetrics, error) {
	interactionsTotal, err := meter.Int64Counter(
		"ai_interactions_total",
		metric.WithDescription("AI interactions that reached a backend"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_interactions_total counter: %w", err)
	}

	tokensTotal, err := meter.Int64Counter(
		"ai_tokens_total",
		metric.WithDescription("Tokens consumed, by provider and token type"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_tokens_total counter: %w", err)
	}

	costTotal, err := meter.Float64Counter(
		"ai_cost_usd_total",
		metric.WithDescription("Accumulated AI cost"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_cost_usd_total counter: %w", err)
	}

	responseLatency, err := meter.Float64Histogram(
		"ai_response_latency_seconds",
		metric.WithDescription("Time spent waiting for AI backends"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_response_latency_seconds histogram: %w", err)
	}

	rateLimitRejections, err := meter.Int64Counter(
		"ai_rate_limit_rejections_total",
		metric.WithDescription("Requests rejected by a rate window"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_rate_limit_rejections_total counter: %w", err)
	}

	budgetExceededTotal, err := meter.Int64Counter(
		"ai_budget_exceeded_total",
		metric.WithDescription("Calls that ended at or above the monthly budget"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_budget_exceeded_total counter: %w", err)
	}

	interactionsDropped, err := meter.Int64Counter(
		"ai_interaction_logs_dropped_total",
		metric.WithDescription("Interaction records dropped due to a full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_interaction_logs_dropped_total counter: %w", err)
	}

	interactionLogErrors, err := meter.Int64Counter(
		"ai_interaction_log_write_errors_total",
		metric.WithDescription("Failed interaction record writes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_interaction_log_write_errors_total counter: %w", err)
	}

	logQueueSize, err := meter.Int64Gauge(
		"ai_interaction_log_queue_size",
		metric.WithDescription("Interaction records waiting to be persisted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_interaction_log_queue_size gauge: %w", err)
	}

	monthlyCost, err := meter.Float64Gauge(
		"ai_monthly_cost_usd",
		metric.WithDescription("Cost of the current month per provider"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_monthly_cost_usd gauge: %w", err)
	}

	monthlyTokens, err := meter.Int64Gauge(
		"ai_monthly_tokens",
		metric.WithDescription("Tokens of the current month per provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_monthly_tokens gauge: %w", err)
	}

	return &AIMetrics{
		interactionsTotal:    interactionsTotal,
		tokensTotal:          tokensTotal,
		costTotal:            costTotal,
		responseLatency:      responseLatency,
		rateLimitRejections:  rateLimitRejections,
		budgetExceededTotal:  budgetExceededTotal,
		interactionsDropped:  interactionsDropped,
		interactionLogErrors: interactionLogErrors,
		logQueueSize:         logQueueSize,
		monthlyCost:          monthlyCost,
		monthlyTokens:        monthlyTokens,
	}, nil
}

func (m *AIMetrics) RecordInteraction(ctx context.Context, provider string, op sixlab.Operation, status string, inputTokens, outputTokens int64, cost float64, latency time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", string(op)),
		attribute.String("status", status),
	)
	m.interactionsTotal.Add(ctx, 1, attrs)
	m.responseLatency.Record(ctx, latency.Seconds(), attrs)

	if inputTokens > 0 {
		m.tokensTotal.Add(ctx, inputTokens, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("token_type", "input"),
		))
	}
	if outputTokens > 0 {
		m.tokensTotal.Add(ctx, outputTokens, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("token_type", "output"),
		))
	}
	if cost > 0 {
		m.costTotal.Add(ctx, cost, metric.WithAttributes(attribute.String("provider", provider)))
	}
}

func (m *AIMetrics) RecordRateLimitRejection(ctx context.Context, provider string, window sixlab.RateWindow) {
	m.rateLimitRejections.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("window", string(window)),
		),
	)
}

// BudgetExceeded counts budget signals. It lets AIMetrics be registered as a BudgetObserver.
func (m *AIMetrics) BudgetExceeded(ctx context.Context, event sixlab.BudgetExceededEvent) {
	m.budgetExceededTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", event.Provider),
		),
	)
}

func (m *AIMetrics) RecordInteractionDropped(ctx context.Context) {
	m.interactionsDropped.Add(ctx, 1)
}

func (m *AIMetrics) RecordInteractionLogError(ctx context.Context, sink string) {
	m.interactionLogErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sink", sink),
		),
	)
}

func (m *AIMetrics) UpdateLogQueueSize(ctx context.Context, size int64) {
	m.logQueueSize.Record(ctx, size)
}

func (m *AIMetrics) RecordUsageSnapshot(ctx context.Context, provider string, stats sixlab.UsageStats) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.monthlyCost.Record(ctx, stats.TotalCost, attrs)
	m.monthlyTokens.Record(ctx, stats.TotalTokens, attrs)
}
