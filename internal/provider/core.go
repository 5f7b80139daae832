// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/ratelimit"
	"github.com/MadsRC/sixlab/internal/transport"
	"github.com/MadsRC/sixlab/internal/usage"
)

func (c *Core) Type() string        { return c.desc.Type }
func (c *Core) DisplayName() string { return c.desc.DisplayName }
func (c *Core) Description() string { return c.desc.Description }

func (c *Core) DefaultConfig() sixlab.ProviderConfig {
	return c.desc.DefaultConfig.Clone()
}

func (c *Core) ConfigFields() []sixlab.ConfigField {
	return slices.Clone(c.desc.ConfigFields)
}

func (c *Core) DefaultPrompts() sixlab.PromptTemplates {
	return maps.Clone(c.desc.Prompts)
}

// Config returns a copy of the active configuration.
func (c *Core) Config() sixlab.ProviderConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Clone()
}

// SetConfig validates cfg, completed with the provider defaults, and makes
// it the active configuration. The active configuration is left unchanged
// when validation fails.
func (c *Core) SetConfig(cfg sixlab.ProviderConfig) error {
	merged := c.desc.DefaultConfig.Merge(cfg)
	if err := c.ValidateConfig(merged); err != nil {
		return err
	}

	c.mu.Lock()
	c.config = merged
	c.mu.Unlock()

	c.options.Logger.Info("Provider configuration updated", "provider", c.desc.Type)
	return nil
}

func (c *Core) ValidateConfig(cfg sixlab.ProviderConfig) error {
	return ValidateConfig(c.desc.ConfigFields, cfg)
}

func (c *Core) ContextualHelp(ctx context.Context, req sixlab.HelpRequest) (sixlab.Response, error) {
	return c.Do(ctx, req)
}

func (c *Core) AnalyzeConfiguration(ctx context.Context, req sixlab.ConfigurationAnalysisRequest) (sixlab.Response, error) {
	return c.Do(ctx, req)
}

func (c *Core) ExplainError(ctx context.Context, req sixlab.ErrorExplanationRequest) (sixlab.Response, error) {
	return c.Do(ctx, req)
}

func (c *Core) GenerateHints(ctx context.Context, req sixlab.HintRequest) (sixlab.Response, error) {
	return c.Do(ctx, req)
}

func (c *Core) ChatResponse(ctx context.Context, req sixlab.ChatRequest) (sixlab.Response, error) {
	return c.Do(ctx, req)
}

// Do runs a typed operation request.
func (c *Core) Do(ctx context.Context, req sixlab.OperationRequest) (sixlab.Response, error) {
	return c.Invoke(ctx, req.Operation(), req.Vars())
}

// Invoke runs op against the backend.
//
// Configuration and rate limit failures return before the backend is
// contacted and leave no trace apart from the rate limit check. A failed
// backend call gives its minute reservation back, emits a failed interaction
// record and is returned as is. A successful call records usage, emits an
// interaction record and counts against the hour and day windows.
func (c *Core) Invoke(ctx context.Context, op sixlab.Operation, input sixlab.Context) (sixlab.Response, error) {
	if !slices.Contains(sixlab.Operations, op) {
		return sixlab.Response{}, fmt.Errorf("%w: %s", sixlab.ErrUnknownOperation, op)
	}

	cfg := c.Config()
	if !cfg.GetBool(sixlab.ConfigEnabled, true) {
		return sixlab.Response{}, fmt.Errorf("%w: %s", sixlab.ErrProviderDisabled, c.desc.Type)
	}
	if err := c.ValidateConfig(cfg); err != nil {
		return sixlab.Response{}, err
	}

	vars := c.options.Guard.SanitizeContext(input)
	if history, ok := historyText(vars["history"]); ok {
		vars["history"] = c.options.Guard.FilterContent(history)
	}

	limits := ratelimit.LimitsFromConfig(cfg)
	reservation, err := c.options.Limiter.Reserve(ctx, c.desc.Type, sixlab.WindowMinute, limits.Ceiling(sixlab.WindowMinute))
	if err != nil {
		if errors.Is(err, sixlab.ErrRateLimitExceeded) && c.options.Metrics != nil {
			c.options.Metrics.RecordRateLimitRejection(ctx, c.desc.Type, sixlab.WindowMinute)
		}
		return sixlab.Response{}, err
	}

	system := c.composer.Build(sixlab.TemplateSystem, vars)
	userPrompt := c.composer.Build(string(op), vars)
	if userPrompt == "" {
		userPrompt = fallbackPrompt(vars)
	}
	call := CallFromConfig(cfg, op, system, userPrompt)

	req, err := c.backend.CompletionRequest(cfg, call)
	if err != nil {
		c.release(ctx, reservation)
		return sixlab.Response{}, fmt.Errorf("failed to build %s request: %w", c.desc.Type, err)
	}
	if req.Timeout <= 0 {
		req.Timeout = cfg.Timeout()
	}

	resp, completion, err := c.exchange(ctx, req)
	if err != nil {
		c.release(ctx, reservation)
		c.emit(ctx, c.failureRecord(op, call, resp, err))
		if c.options.Metrics != nil {
			c.options.Metrics.RecordInteraction(ctx, c.desc.Type, op, sixlab.InteractionStatusFailed, 0, 0, 0, resp.Elapsed)
		}
		c.options.Logger.Warn("AI request failed",
			"provider", c.desc.Type,
			"operation", op,
			"timeout", errors.Is(err, sixlab.ErrTimeout),
			"error", err)
		return sixlab.Response{}, err
	}

	content := completion.Content
	if cfg.GetBool(sixlab.ConfigContentFilter, true) {
		content = c.options.Guard.MaskProfanity(content)
	}
	content = c.options.Guard.FilterInjections(content)

	inputTokens := max(completion.InputTokens, 0)
	outputTokens := max(completion.OutputTokens, 0)
	tokens := max(completion.Tokens(), 0)

	cost, err := usage.CalculateCost(inputTokens, outputTokens, usage.RatesFromConfig(cfg))
	if err != nil {
		c.options.Logger.Error("Failed to calculate cost", "provider", c.desc.Type, "error", err)
		cost = 0
	}

	if _, err := c.options.Accountant.RecordUsage(ctx, c.desc.Type, tokens, cost); err != nil {
		c.options.Logger.Error("Failed to record usage", "provider", c.desc.Type, "error", err)
	}

	c.emit(ctx, c.successRecord(op, call, resp, completion, content, inputTokens, outputTokens, tokens, cost))

	for _, w := range []sixlab.RateWindow{sixlab.WindowHour, sixlab.WindowDay} {
		if _, err := c.options.Limiter.Increment(ctx, c.desc.Type, w); err != nil {
			c.options.Logger.Error("Failed to increment rate counter", "provider", c.desc.Type, "window", w, "error", err)
		}
	}

	if c.options.Metrics != nil {
		c.options.Metrics.RecordInteraction(ctx, c.desc.Type, op, sixlab.InteractionStatusSuccess, inputTokens, outputTokens, cost, resp.Elapsed)
	}

	c.options.Logger.Debug("AI request completed",
		"provider", c.desc.Type,
		"operation", op,
		"tokens", tokens,
		"costUSD", cost,
		"elapsed", resp.Elapsed)

	return sixlab.Response{
		Content:        content,
		TokensUsed:     tokens,
		CostUSD:        cost,
		ResponseTimeMs: resp.ElapsedMs(),
	}, nil
}

// exchange sends req and decodes a successful answer. Non-2xx answers become
// *sixlab.APIError carrying the status and body.
func (c *Core) exchange(ctx context.Context, req transport.Request) (transport.Response, Completion, error) {
	resp, err := c.options.Transport.Do(ctx, req)
	if err != nil {
		return resp, Completion{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, Completion{}, &sixlab.APIError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	completion, err := c.backend.ParseCompletion(resp.Body)
	if err != nil {
		return resp, Completion{}, fmt.Errorf("%w: failed to decode %s response: %v", sixlab.ErrAPIRequestFailed, c.desc.Type, err)
	}
	return resp, completion, nil
}

func (c *Core) release(ctx context.Context, reservation ratelimit.Reservation) {
	if err := c.options.Limiter.Release(ctx, reservation); err != nil {
		c.options.Logger.Error("Failed to release rate limit reservation", "provider", c.desc.Type, "error", err)
	}
}

// TestConnection sends a minimal completion to verify the credentials and
// endpoint. It is not rate limited and is not accounted.
func (c *Core) TestConnection(ctx context.Context) (sixlab.ConnectionResult, error) {
	cfg := c.Config()
	if err := c.ValidateConfig(cfg); err != nil {
		return sixlab.ConnectionResult{Message: err.Error()}, err
	}

	call := CallFromConfig(cfg, "", "", "Reply with the single word OK.")
	call.MaxTokens = 5
	req, err := c.backend.CompletionRequest(cfg, call)
	if err != nil {
		return sixlab.ConnectionResult{Message: err.Error()}, fmt.Errorf("failed to build %s request: %w", c.desc.Type, err)
	}
	if req.Timeout <= 0 {
		req.Timeout = cfg.Timeout()
	}

	resp, completion, err := c.exchange(ctx, req)
	if err != nil {
		c.options.Logger.Warn("Connection test failed", "provider", c.desc.Type, "error", err)
		return sixlab.ConnectionResult{Message: err.Error(), Model: call.Model, ResponseTimeMs: resp.ElapsedMs()}, err
	}

	model := completion.Model
	if model == "" {
		model = call.Model
	}
	c.options.Logger.Info("Connection test succeeded", "provider", c.desc.Type, "model", model, "elapsed", resp.Elapsed)

	return sixlab.ConnectionResult{
		Success:        true,
		Message:        "Connection successful",
		Model:          model,
		ResponseTimeMs: resp.ElapsedMs(),
	}, nil
}

func (c *Core) emit(ctx context.Context, record sixlab.InteractionRecord) {
	if c.options.Interactions == nil {
		return
	}
	c.options.Interactions.LogInteraction(ctx, record)
}

func (c *Core) baseRecord(op sixlab.Operation, call Call) sixlab.InteractionRecord {
	request, _ := json.Marshal(map[string]any{
		"model":  call.Model,
		"system": call.System,
		"prompt": call.Prompt,
	})
	return sixlab.InteractionRecord{
		ID:              uuid.NewString(),
		Provider:        c.desc.Type,
		InteractionType: op,
		Model:           call.Model,
		RequestData:     request,
		Timestamp:       c.options.Clock().UTC(),
	}
}

func (c *Core) successRecord(op sixlab.Operation, call Call, resp transport.Response, completion Completion, content string, in, out, tokens int64, cost float64) sixlab.InteractionRecord {
	record := c.baseRecord(op, call)
	if completion.Model != "" {
		record.Model = completion.Model
	}
	record.ResponseData, _ = json.Marshal(map[string]any{"content": content})
	record.TokensUsed = tokens
	record.InputTokens = in
	record.OutputTokens = out
	record.CostUSD = cost
	record.ResponseTimeMs = resp.ElapsedMs()
	record.Status = sixlab.InteractionStatusSuccess
	return record
}

func (c *Core) failureRecord(op sixlab.Operation, call Call, resp transport.Response, err error) sixlab.InteractionRecord {
	record := c.baseRecord(op, call)
	var apiErr *sixlab.APIError
	if errors.As(err, &apiErr) {
		record.ResponseData, _ = json.Marshal(map[string]any{"status_code": apiErr.StatusCode, "body": apiErr.Body})
	}
	record.ResponseTimeMs = resp.ElapsedMs()
	record.Status = sixlab.InteractionStatusFailed
	record.ErrorMessage = err.Error()
	return record
}

// historyText flattens a conversation history into "role: content" lines.
func historyText(v any) (string, bool) {
	switch h := v.(type) {
	case string:
		return h, true
	case []sixlab.Message:
		return sixlab.FormatHistory(h), true
	case []any:
		msgs := make([]sixlab.Message, 0, len(h))
		for _, e := range h {
			m, ok := e.(map[string]any)
			if !ok {
				if ctxMap, isCtx := e.(sixlab.Context); isCtx {
					m = ctxMap
				} else {
					continue
				}
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			msgs = append(msgs, sixlab.Message{Role: role, Content: content})
		}
		return sixlab.FormatHistory(msgs), true
	default:
		return "", false
	}
}

// fallbackPrompt lists the scalar context values when no template exists.
func fallbackPrompt(vars sixlab.Context) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		switch v := vars[k].(type) {
		case string:
			if v == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		case int, int64, float64:
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
