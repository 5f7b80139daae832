// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package provider

import (
	"github.com/MadsRC/sixlab"
)

// CommonConfigFields are the settings every provider shares: request tuning,
// rate ceilings, token prices and feature flags.
func CommonConfigFields() []sixlab.ConfigField {
	return []sixlab.ConfigField{
		{
			Name:       sixlab.ConfigTemperature,
			Type:       sixlab.FieldTypeNumber,
			Label:      "Temperature",
			Validation: "numeric|min:0|max:2",
			Default:    0.7,
		},
		{
			Name:       sixlab.ConfigMaxTokens,
			Type:       sixlab.FieldTypeNumber,
			Label:      "Max tokens",
			Validation: "integer|min:1|max:200000",
			Default:    1000,
		},
		{
			Name:        sixlab.ConfigTimeout,
			Type:        sixlab.FieldTypeNumber,
			Label:       "Timeout",
			Description: "Request timeout in seconds",
			Validation:  "integer|min:1|max:300",
			Default:     30,
		},
		{
			Name:       sixlab.ConfigRateLimitPerMinute,
			Type:       sixlab.FieldTypeNumber,
			Label:      "Requests per minute",
			Validation: "integer|min:1",
			Default:    20,
		},
		{
			Name:       sixlab.ConfigRateLimitPerHour,
			Type:       sixlab.FieldTypeNumber,
			Label:      "Requests per hour",
			Validation: "integer|min:1",
			Default:    100,
		},
		{
			Name:       sixlab.ConfigRateLimitPerDay,
			Type:       sixlab.FieldTypeNumber,
			Label:      "Requests per day",
			Validation: "integer|min:1",
			Default:    500,
		},
		{
			Name:        sixlab.ConfigInputTokenRate,
			Type:        sixlab.FieldTypeNumber,
			Label:       "Input token rate",
			Description: "USD per 1000 input tokens",
			Validation:  "numeric|min:0",
		},
		{
			Name:        sixlab.ConfigOutputTokenRate,
			Type:        sixlab.FieldTypeNumber,
			Label:       "Output token rate",
			Description: "USD per 1000 output tokens",
			Validation:  "numeric|min:0",
		},
		{
			Name:        sixlab.ConfigContentFilter,
			Type:        sixlab.FieldTypeCheckbox,
			Label:       "Profanity filter",
			Description: "Mask profanity in AI responses. Prompt injection phrases are always filtered.",
			Default:     true,
		},
		{
			Name:    sixlab.ConfigEnabled,
			Type:    sixlab.FieldTypeCheckbox,
			Label:   "Enabled",
			Default: true,
		},
	}
}

// CommonDefaultConfig holds the defaults of CommonConfigFields.
func CommonDefaultConfig() sixlab.ProviderConfig {
	cfg := sixlab.ProviderConfig{}
	for _, f := range CommonConfigFields() {
		if f.Default != nil {
			cfg[f.Name] = f.Default
		}
	}
	return cfg
}

// DefaultPrompts are the prompt templates of the five operations plus the
// system prompt.
func DefaultPrompts() sixlab.PromptTemplates {
	return sixlab.PromptTemplates{
		sixlab.TemplateSystem: "You are a patient networking instructor assisting a student in a virtual lab. " +
			"Answer precisely, prefer vendor-neutral explanations, and never reveal complete lab solutions unless asked for them.",
		string(sixlab.OperationContextualHelp): "The student is working on the lab \"{lab_title}\", step {step}: {step_title}.\n" +
			"Step instructions: {instruction}\n" +
			"Student level: {user_level}\n" +
			"Question: {question}\n" +
			"Give focused help for this step.",
		string(sixlab.OperationConfigurationAnalysis): "Review the following {device_type} configuration of device {device_name}.\n" +
			"Lab objectives: {objectives}\n\n" +
			"{configuration}\n\n" +
			"List mistakes, missing statements and security issues, and suggest corrections.",
		string(sixlab.OperationErrorExplanation): "A student ran the command \"{command}\" on a {device_type} device and got this error:\n" +
			"{error_message}\n" +
			"Explain what the error means and how to fix it.",
		string(sixlab.OperationHintGeneration): "The student is stuck on step {step} of the lab \"{lab_title}\" after {attempts} attempts.\n" +
			"Objective: {objective}\n" +
			"Give a level {hint_level} hint, where 1 is a gentle nudge and 3 is nearly the answer.",
		string(sixlab.OperationChat): "Lab: {lab_title}\n" +
			"Conversation so far:\n{history}\n\n" +
			"Student: {message}",
	}
}
