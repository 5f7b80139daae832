// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package audit

import (
	"context"
	"log/slog"

	"github.com/MadsRC/sixlab"
)

// SlogLogger writes interaction records as structured log lines. Request and
// response payloads are left out.
type SlogLogger struct {
	Logger *slog.Logger
	Level  slog.Level
}

var _ sixlab.InteractionLogger = (*SlogLogger)(nil)

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{Logger: logger, Level: slog.LevelInfo}
}

func (s *SlogLogger) LogInteraction(ctx context.Context, r sixlab.InteractionRecord) {
	level := s.Level
	if r.Status == sixlab.InteractionStatusFailed {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("interactionId", r.ID),
		slog.String("provider", r.Provider),
		slog.String("interactionType", string(r.InteractionType)),
		slog.String("model", r.Model),
		slog.String("status", r.Status),
		slog.Int64("tokensUsed", r.TokensUsed),
		slog.Float64("costUSD", r.CostUSD),
		slog.Int64("responseTimeMs", r.ResponseTimeMs),
	}
	if r.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", r.ErrorMessage))
	}

	s.Logger.LogAttrs(ctx, level, "AI interaction", attrs...)
}

// Multi fans a record out to every logger in order.
type Multi []sixlab.InteractionLogger

func (m Multi) LogInteraction(ctx context.Context, r sixlab.InteractionRecord) {
	for _, l := range m {
		if l != nil {
			l.LogInteraction(ctx, r)
		}
	}
}

// BudgetLogger logs a warning for every budget exceeded event.
type BudgetLogger struct {
	Logger *slog.Logger
}

var _ sixlab.BudgetObserver = BudgetLogger{}

func (b BudgetLogger) BudgetExceeded(ctx context.Context, event sixlab.BudgetExceededEvent) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "Monthly AI budget exceeded",
		"provider", event.Provider,
		"totalCost", event.TotalCost,
		"budget", event.Budget)
}
