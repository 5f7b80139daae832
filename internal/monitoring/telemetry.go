// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	Logger         *slog.Logger
}

type TelemetryManager struct {
	meterProvider *sdkmetric.MeterProvider
	config        TelemetryConfig
}

// NewTelemetryManager exports metrics over OTLP/gRPC to config.OTLPEndpoint
// and installs the meter provider globally.
func NewTelemetryManager(config TelemetryConfig) (*TelemetryManager, error) {
	if config.OTLPEndpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	ctx := context.Background()
	otlpExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tm, err := NewTelemetryManagerWithReader(config, sdkmetric.NewPeriodicReader(otlpExporter))
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("OTLP metrics enabled", "endpoint", config.OTLPEndpoint)

	otel.SetMeterProvider(tm.meterProvider)

	return tm, nil
}

// NewTelemetryManagerWithReader builds a meter provider around reader without
// touching the global meter provider.
func NewTelemetryManagerWithReader(config TelemetryConfig, reader sdkmetric.Reader) (*TelemetryManager, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	return &TelemetryManager{
		meterProvider: meterProvider,
		config:        config,
	}, nil
}

func (tm *TelemetryManager) GetMeter(instrumentationName string) metric.Meter {
	return tm.meterProvider.Meter(instrumentationName)
}

func (tm *TelemetryManager) Shutdown(ctx context.Context) error {
	return tm.meterProvider.Shutdown(ctx)
}
