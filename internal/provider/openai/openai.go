// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package openai talks to the OpenAI chat completions API and to any
// server that speaks the same format, such as OpenRouter or Ollama.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/provider"
	"github.com/MadsRC/sixlab/internal/transport"
)

const (
	Type            = "openai"
	DefaultEndpoint = "https://api.openai.com/v1"
	DefaultModel    = "gpt-4o-mini"

	// ConfigOrganization is sent as the OpenAI-Organization header when set.
	ConfigOrganization = "organization"
)

type Provider struct {
	*provider.Core
}

var _ sixlab.Provider = (*Provider)(nil)

// New creates an OpenAI provider. Options are passed on to [provider.New].
func New(options ...provider.Option) (*Provider, error) {
	core, err := provider.New(Descriptor(), Backend{}, options...)
	if err != nil {
		return nil, err
	}
	return &Provider{Core: core}, nil
}

// Descriptor describes the OpenAI provider and its configuration schema.
func Descriptor() provider.Descriptor {
	fields := []sixlab.ConfigField{
		{
			Name:     sixlab.ConfigAPIKey,
			Type:     sixlab.FieldTypePassword,
			Label:    "API key",
			Required: true,
		},
		{
			Name:        sixlab.ConfigAPIEndpoint,
			Type:        sixlab.FieldTypeURL,
			Label:       "API endpoint",
			Description: "Base URL of an OpenAI compatible API",
			Validation:  "url",
			Default:     DefaultEndpoint,
		},
		{
			Name:       sixlab.ConfigModel,
			Type:       sixlab.FieldTypeText,
			Label:      "Model",
			Validation: "required|max:100",
			Default:    DefaultModel,
		},
		{
			Name:  ConfigOrganization,
			Type:  sixlab.FieldTypeText,
			Label: "Organization",
		},
	}
	fields = append(fields, provider.CommonConfigFields()...)

	cfg := provider.CommonDefaultConfig()
	cfg[sixlab.ConfigAPIEndpoint] = DefaultEndpoint
	cfg[sixlab.ConfigModel] = DefaultModel
	cfg[sixlab.ConfigInputTokenRate] = 0.00015
	cfg[sixlab.ConfigOutputTokenRate] = 0.0006

	return provider.Descriptor{
		Type:          Type,
		DisplayName:   "OpenAI",
		Description:   "OpenAI chat completions and compatible APIs",
		DefaultConfig: cfg,
		ConfigFields:  fields,
		Prompts:       provider.DefaultPrompts(),
	}
}

// Backend encodes chat completion requests.
type Backend struct{}

func (Backend) CompletionRequest(cfg sixlab.ProviderConfig, call provider.Call) (transport.Request, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if call.System != "" {
		msgs = append(msgs, openai.SystemMessage(call.System))
	}
	msgs = append(msgs, openai.UserMessage(call.Prompt))

	body, err := json.Marshal(openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(call.Model),
		Messages:    msgs,
		Temperature: openai.Float(call.Temperature),
		MaxTokens:   openai.Int(call.MaxTokens),
	})
	if err != nil {
		return transport.Request{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := cfg.GetString(sixlab.ConfigAPIEndpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	headers := map[string]string{
		"Authorization": "Bearer " + cfg.GetString(sixlab.ConfigAPIKey),
	}
	if org := cfg.GetString(ConfigOrganization); org != "" {
		headers["OpenAI-Organization"] = org
	}

	return transport.Request{
		URL:     strings.TrimRight(endpoint, "/") + "/chat/completions",
		Method:  http.MethodPost,
		Headers: headers,
		Body:    body,
	}, nil
}

func (Backend) ParseCompletion(body []byte) (provider.Completion, error) {
	var resp openai.ChatCompletion
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return provider.Completion{}, errors.New("empty choices in response")
	}

	return provider.Completion{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}
