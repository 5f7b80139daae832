// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the AI governance metrics.
const MeterName = "github.com/MadsRC/sixlab/ai"

type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	Logger         *slog.Logger
}

type Manager struct {
	telemetry *TelemetryManager
	aiMetrics *AIMetrics
	config    Config
}

func NewManager(config Config) (*Manager, error) {
	telemetry, err := NewTelemetryManager(TelemetryConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry manager: %w", err)
	}

	aiMetrics, err := NewAIMetrics(telemetry.GetMeter(MeterName))
	if err != nil {
		return nil, fmt.Errorf("failed to create ai metrics: %w", err)
	}

	return &Manager{
		telemetry: telemetry,
		aiMetrics: aiMetrics,
		config:    config,
	}, nil
}

func (m *Manager) GetAIMetrics() *AIMetrics {
	return m.aiMetrics
}

func (m *Manager) GetMeter(instrumentationName string) metric.Meter {
	return m.telemetry.GetMeter(instrumentationName)
}

func (m *Manager) Shutdown(ctx context.Context) error {
	return m.telemetry.Shutdown(ctx)
}
