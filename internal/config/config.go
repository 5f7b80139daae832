// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads the provider configuration file.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/registry"
)

// File is the on-disk provider configuration.
//
//	monthly_budget: 50
//	prompts:
//	  system: "You are a lab assistant."
//	providers:
//	  openai:
//	    api_key: ${OPENAI_API_KEY}
//	    model: gpt-4o-mini
type File struct {
	MonthlyBudget *float64                         `yaml:"monthly_budget"`
	Prompts       sixlab.PromptTemplates           `yaml:"prompts"`
	Providers     map[string]sixlab.ProviderConfig `yaml:"providers"`
}

// Load reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config data after environment expansion.
func Parse(data []byte) (File, error) {
	expanded := os.ExpandEnv(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return File{}, fmt.Errorf("%w: failed to parse config: %v", sixlab.ErrInvalidArgument, err)
	}

	if f.MonthlyBudget != nil && *f.MonthlyBudget < 0 {
		return File{}, fmt.Errorf("%w: monthly_budget cannot be negative", sixlab.ErrInvalidArgument)
	}
	for name := range f.Prompts {
		if name == sixlab.TemplateSystem {
			continue
		}
		if _, err := sixlab.ParseOperation(name); err != nil {
			return File{}, fmt.Errorf("prompt %q: %w", name, err)
		}
	}

	return f, nil
}

// Validate checks every provider section against the provider's schema,
// with defaults filled in, without storing anything.
func (f File) Validate(ctx context.Context, reg *registry.Registry) error {
	var errs []error
	for _, providerType := range slices.Sorted(maps.Keys(f.Providers)) {
		p, err := reg.Get(ctx, providerType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged := p.DefaultConfig().Merge(f.Providers[providerType])
		if err := p.ValidateConfig(merged); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", providerType, err))
		}
	}
	return errors.Join(errs...)
}

// Apply stores the budget and every provider section. Providers are
// configured in name order and the first failure stops the run.
func (f File) Apply(ctx context.Context, reg *registry.Registry, store sixlab.ConfigStore) error {
	if f.MonthlyBudget != nil {
		raw, err := json.Marshal(*f.MonthlyBudget)
		if err != nil {
			return fmt.Errorf("failed to encode monthly budget: %w", err)
		}
		if err := store.SetOption(ctx, sixlab.OptionMonthlyBudget, raw); err != nil {
			return fmt.Errorf("failed to store monthly budget: %w", err)
		}
	}

	for _, providerType := range slices.Sorted(maps.Keys(f.Providers)) {
		if err := reg.Configure(ctx, providerType, f.Providers[providerType]); err != nil {
			return fmt.Errorf("provider %s: %w", providerType, err)
		}
	}
	return nil
}
