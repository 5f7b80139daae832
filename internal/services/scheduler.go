// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package services holds background jobs.
package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/monitoring"
)

// DefaultReportInterval is how often usage is snapshotted.
const DefaultReportInterval = 5 * time.Minute

// ProviderLister lists the registered provider identifiers.
type ProviderLister interface {
	Types() []string
}

// UsageSource reads accumulated usage and the configured budget.
type UsageSource interface {
	GetUsageStats(ctx context.Context, providerType string) (sixlab.UsageStats, error)
	MonthlyBudget(ctx context.Context) float64
}

// Snapshot is the usage of one provider at report time.
type Snapshot struct {
	Provider string
	Stats    sixlab.UsageStats
}

// UsageReporter periodically publishes the monthly usage of every provider
// to the metrics gauges and the log.
type UsageReporter struct {
	providers ProviderLister
	usage     UsageSource
	logger    *slog.Logger
	metrics   *monitoring.AIMetrics
	interval  time.Duration
	now       func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// UsageReporterOption configures UsageReporter behavior
type UsageReporterOption func(*UsageReporter)

// WithReporterLogger sets the logger for the reporter
func WithReporterLogger(logger *slog.Logger) UsageReporterOption {
	return func(r *UsageReporter) {
		r.logger = logger
	}
}

// WithReporterMetrics sets the metrics the snapshots are recorded in
func WithReporterMetrics(metrics *monitoring.AIMetrics) UsageReporterOption {
	return func(r *UsageReporter) {
		r.metrics = metrics
	}
}

// WithReportInterval sets how often a report runs
func WithReportInterval(interval time.Duration) UsageReporterOption {
	return func(r *UsageReporter) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithReporterClock replaces time.Now
func WithReporterClock(now func() time.Time) UsageReporterOption {
	return func(r *UsageReporter) {
		r.now = now
	}
}

// NewUsageReporter creates a new UsageReporter instance
func NewUsageReporter(providers ProviderLister, usage UsageSource, options ...UsageReporterOption) *UsageReporter {
	r := &UsageReporter{
		providers: providers,
		usage:     usage,
		logger:    slog.Default(),
		interval:  DefaultReportInterval,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Start begins the reporter's background operations
func (r *UsageReporter) Start(ctx context.Context) {
	r.logger.Info("Starting usage reporter", "interval", r.interval.String())

	go r.run(ctx)
}

// Stop gracefully shuts down the reporter. It is safe to call more than once.
func (r *UsageReporter) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping usage reporter")
		close(r.stopChan)
	})
	<-r.doneChan
}

func (r *UsageReporter) run(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Usage reporter context cancelled")
			return

		case <-r.stopChan:
			r.logger.Info("Usage reporter stopped")
			return

		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report takes one snapshot of every provider. Stats left over from a past
// month are reported as zero since the next call will reset them.
func (r *UsageReporter) Report(ctx context.Context) []Snapshot {
	start := r.now()
	budget := r.usage.MonthlyBudget(ctx)

	var (
		snapshots []Snapshot
		totalCost float64
	)
	for _, providerType := range r.providers.Types() {
		stats, err := r.usage.GetUsageStats(ctx, providerType)
		if err != nil {
			r.logger.Error("Failed to read usage stats", "provider", providerType, "error", err)
			continue
		}
		if !stats.LastReset.IsZero() && !stats.SameMonth(start) {
			stats = sixlab.UsageStats{}
		}

		if r.metrics != nil {
			r.metrics.RecordUsageSnapshot(ctx, providerType, stats)
		}
		r.logger.Info("AI usage",
			"provider", providerType,
			"totalRequests", stats.TotalRequests,
			"totalTokens", stats.TotalTokens,
			"totalCost", stats.TotalCost,
		)

		totalCost += stats.TotalCost
		snapshots = append(snapshots, Snapshot{Provider: providerType, Stats: stats})
	}

	r.logger.Info("Usage report completed",
		"providers", len(snapshots),
		"totalCost", totalCost,
		"monthlyBudget", budget,
		"duration", time.Since(start),
	)
	return snapshots
}
