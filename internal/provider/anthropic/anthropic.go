// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/provider"
	"github.com/MadsRC/sixlab/internal/transport"
)

const (
	Type            = "anthropic"
	DefaultEndpoint = "https://api.anthropic.com/v1"
	DefaultModel    = "claude-3-5-haiku-latest"

	AnthropicVersionHeader     = "anthropic-version"
	AnthropicVersion2023_06_01 = "2023-06-01"
	AnthropicVersionLatest     = AnthropicVersion2023_06_01

	// ConfigAPIVersion overrides the anthropic-version header.
	ConfigAPIVersion = "api_version"
)

type Provider struct {
	*provider.Core
}

var _ sixlab.Provider = (*Provider)(nil)

func New(options ...provider.Option) (*Provider, error) {
	core, err := provider.New(Descriptor(), Backend{}, options...)
	if err != nil {
		return nil, err
	}
	return &Provider{Core: core}, nil
}

func Descriptor() provider.Descriptor {
	fields := []sixlab.ConfigField{
		{
			Name:     sixlab.ConfigAPIKey,
			Type:     sixlab.FieldTypePassword,
			Label:    "API key",
			Required: true,
		},
		{
			Name:       sixlab.ConfigAPIEndpoint,
			Type:       sixlab.FieldTypeURL,
			Label:      "API endpoint",
			Validation: "url",
			Default:    DefaultEndpoint,
		},
		{
			Name:       sixlab.ConfigModel,
			Type:       sixlab.FieldTypeText,
			Label:      "Model",
			Validation: "required|max:100",
			Default:    DefaultModel,
		},
		{
			Name:    ConfigAPIVersion,
			Type:    sixlab.FieldTypeSelect,
			Label:   "API version",
			Options: []string{AnthropicVersion2023_06_01},
			Default: AnthropicVersionLatest,
		},
	}
	fields = append(fields, provider.CommonConfigFields()...)

	cfg := provider.CommonDefaultConfig()
	cfg[sixlab.ConfigAPIEndpoint] = DefaultEndpoint
	cfg[sixlab.ConfigModel] = DefaultModel
	cfg[ConfigAPIVersion] = AnthropicVersionLatest
	cfg[sixlab.ConfigInputTokenRate] = 0.0008
	cfg[sixlab.ConfigOutputTokenRate] = 0.004

	return provider.Descriptor{
		Type:          Type,
		DisplayName:   "Anthropic Claude",
		Description:   "Anthropic messages API",
		DefaultConfig: cfg,
		ConfigFields:  fields,
		Prompts:       provider.DefaultPrompts(),
	}
}

type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type AnthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int64              `json:"max_tokens"`
	Messages    []AnthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []AnthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      *AnthropicUsage         `json:"usage"`
}

type AnthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Backend encodes requests for the messages endpoint.
type Backend struct{}

func (Backend) CompletionRequest(cfg sixlab.ProviderConfig, call provider.Call) (transport.Request, error) {
	// The messages API caps temperature at 1.
	temperature := min(call.Temperature, 1)

	body, err := json.Marshal(AnthropicRequest{
		Model:       call.Model,
		MaxTokens:   call.MaxTokens,
		Messages:    []AnthropicMessage{{Role: "user", Content: call.Prompt}},
		Temperature: &temperature,
		System:      call.System,
	})
	if err != nil {
		return transport.Request{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := cfg.GetString(sixlab.ConfigAPIEndpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	version := cfg.GetString(ConfigAPIVersion)
	if version == "" {
		version = AnthropicVersionLatest
	}

	return transport.Request{
		URL:    strings.TrimRight(endpoint, "/") + "/messages",
		Method: http.MethodPost,
		Headers: map[string]string{
			"x-api-key":            cfg.GetString(sixlab.ConfigAPIKey),
			AnthropicVersionHeader: version,
		},
		Body: body,
	}, nil
}

func (Backend) ParseCompletion(body []byte) (provider.Completion, error) {
	var resp AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Completion{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 && len(resp.Content) == 0 {
		return provider.Completion{}, errors.New("empty content in response")
	}

	c := provider.Completion{
		Content: text.String(),
		Model:   resp.Model,
	}
	if resp.Usage != nil {
		c.InputTokens = resp.Usage.InputTokens
		c.OutputTokens = resp.Usage.OutputTokens
	}
	return c, nil
}
