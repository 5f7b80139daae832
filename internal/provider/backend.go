// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package provider implements the request pipeline shared by every AI
// provider: sanitizing, rate limiting, prompting, transport, filtering,
// accounting and auditing. Vendor packages supply a Descriptor and a Backend.
package provider

import (
	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/transport"
)

// Descriptor is the static description of a provider variant.
type Descriptor struct {
	Type          string
	DisplayName   string
	Description   string
	DefaultConfig sixlab.ProviderConfig
	ConfigFields  []sixlab.ConfigField
	Prompts       sixlab.PromptTemplates
}

// Call is a single completion to send to a backend.
type Call struct {
	Operation   sixlab.Operation
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Completion is a decoded backend answer.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
	// TotalTokens is used when the backend reports it; otherwise it is the
	// sum of input and output tokens.
	TotalTokens int64
}

// Tokens returns the number of tokens the completion consumed.
func (c Completion) Tokens() int64 {
	if c.TotalTokens > 0 {
		return c.TotalTokens
	}
	return c.InputTokens + c.OutputTokens
}

// Backend speaks the wire format of one AI vendor.
type Backend interface {
	// CompletionRequest encodes call for the vendor API described by cfg.
	CompletionRequest(cfg sixlab.ProviderConfig, call Call) (transport.Request, error)

	// ParseCompletion decodes the body of a 2xx answer.
	ParseCompletion(body []byte) (Completion, error)
}

// CallFromConfig fills the model parameters of a Call from cfg.
func CallFromConfig(cfg sixlab.ProviderConfig, op sixlab.Operation, system, prompt string) Call {
	return Call{
		Operation:   op,
		System:      system,
		Prompt:      prompt,
		Model:       cfg.GetString(sixlab.ConfigModel),
		Temperature: cfg.GetFloat(sixlab.ConfigTemperature, 0.7),
		MaxTokens:   cfg.GetInt(sixlab.ConfigMaxTokens, 1000),
	}
}
