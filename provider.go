// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package sixlab

import (
	"context"
	"fmt"
	"time"
)

// Operation is one of the AI operations a provider offers.
type Operation string

const (
	OperationContextualHelp        Operation = "contextual_help"
	OperationConfigurationAnalysis Operation = "configuration_analysis"
	OperationErrorExplanation      Operation = "error_explanation"
	OperationHintGeneration        Operation = "hint_generation"
	OperationChat                  Operation = "chat"
)

// Operations lists all supported operations.
var Operations = []Operation{
	OperationContextualHelp,
	OperationConfigurationAnalysis,
	OperationErrorExplanation,
	OperationHintGeneration,
	OperationChat,
}

// ParseOperation maps an operation name to an Operation.
func ParseOperation(name string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == name {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownOperation, name)
}

// Context is the free-form input payload of an operation. Values are
// strings, numbers, booleans, nested Contexts, map[string]any or slices.
type Context map[string]any

// PromptTemplates maps a template name to a string with {placeholder} markers.
type PromptTemplates map[string]string

// Template names used next to the operation names.
const (
	TemplateSystem = "system"
)

// Response is the structured result of an operation.
type Response struct {
	Content        string  `json:"content"`
	TokensUsed     int64   `json:"tokens_used"`
	CostUSD        float64 `json:"cost_usd"`
	ResponseTimeMs int64   `json:"response_time_ms"`
}

// ConnectionResult is the outcome of Provider.TestConnection.
type ConnectionResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

// Provider is a concrete AI backend integration.
type Provider interface {
	// Type returns the provider identifier, e.g. "openai".
	Type() string
	DisplayName() string
	Description() string

	DefaultConfig() ProviderConfig
	ConfigFields() []ConfigField
	DefaultPrompts() PromptTemplates

	// Config returns a copy of the active configuration.
	Config() ProviderConfig
	// SetConfig validates cfg and replaces the active configuration.
	SetConfig(cfg ProviderConfig) error
	// ValidateConfig checks cfg against ConfigFields.
	ValidateConfig(cfg ProviderConfig) error

	TestConnection(ctx context.Context) (ConnectionResult, error)

	ContextualHelp(ctx context.Context, req HelpRequest) (Response, error)
	AnalyzeConfiguration(ctx context.Context, req ConfigurationAnalysisRequest) (Response, error)
	ExplainError(ctx context.Context, req ErrorExplanationRequest) (Response, error)
	GenerateHints(ctx context.Context, req HintRequest) (Response, error)
	ChatResponse(ctx context.Context, req ChatRequest) (Response, error)

	// Invoke runs op with a free-form context.
	Invoke(ctx context.Context, op Operation, input Context) (Response, error)
}

// RateWindow is a fixed time bucket over which request counts are capped.
type RateWindow string

const (
	WindowMinute RateWindow = "minute"
	WindowHour   RateWindow = "hour"
	WindowDay    RateWindow = "day"
)

// RateWindows lists all windows, shortest first.
var RateWindows = []RateWindow{WindowMinute, WindowHour, WindowDay}

// TTL returns the lifetime of a counter in this window.
func (w RateWindow) TTL() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ConfigKey returns the provider config key that overrides the ceiling for w.
func (w RateWindow) ConfigKey() string {
	switch w {
	case WindowMinute:
		return ConfigRateLimitPerMinute
	case WindowHour:
		return ConfigRateLimitPerHour
	case WindowDay:
		return ConfigRateLimitPerDay
	default:
		return ""
	}
}
