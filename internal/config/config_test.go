// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package config

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/memstore"
	"github.com/MadsRC/sixlab/internal/registry"
)

const sampleConfig = `
monthly_budget: 25.5
prompts:
  system: "You are a terse lab assistant."
providers:
  openai:
    api_key: ${SIXLAB_TEST_OPENAI_KEY}
    model: gpt-4o
    rate_limit_per_minute: 5
  mock:
    temperature: 0.2
`

func newTestRegistry(t *testing.T) (*registry.Registry, *memstore.ConfigStore) {
	t.Helper()
	store := memstore.NewConfigStore()
	reg := registry.New(
		registry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		registry.WithConfigStore(store),
	)
	require.NoError(t, registry.RegisterBuiltins(reg))
	return reg, store
}

func TestLoad(t *testing.T) {
	t.Setenv("SIXLAB_TEST_OPENAI_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "sixlab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.MonthlyBudget)
	assert.Equal(t, 25.5, *f.MonthlyBudget)
	assert.Equal(t, "You are a terse lab assistant.", f.Prompts[sixlab.TemplateSystem])
	assert.Equal(t, "sk-from-env", f.Providers["openai"].GetString(sixlab.ConfigAPIKey))
	assert.Equal(t, int64(5), f.Providers["openai"].GetInt(sixlab.ConfigRateLimitPerMinute, 0))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed yaml", data: "providers: [openai"},
		{name: "negative budget", data: "monthly_budget: -1"},
		{name: "unknown prompt", data: "prompts:\n  summarize: \"{text}\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestFile_Validate(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	f, err := Parse([]byte(`
providers:
  openai:
    model: gpt-4o
  anthropic:
    api_key: sk-ant
    temperature: 1.5
  gemini:
    api_key: x
`))
	require.NoError(t, err)

	err = f.Validate(ctx, reg)
	require.Error(t, err)
	assert.ErrorIs(t, err, sixlab.ErrRequiredFieldMissing, "openai has no api key")
	assert.ErrorIs(t, err, sixlab.ErrUnknownProvider)

	_, err = store.GetOption(ctx, sixlab.ProviderOptionKey("anthropic"))
	assert.ErrorIs(t, err, sixlab.ErrNotFound, "validation stores nothing")
}

func TestFile_Apply(t *testing.T) {
	t.Setenv("SIXLAB_TEST_OPENAI_KEY", "sk-from-env")
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	f, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, f.Validate(ctx, reg))
	require.NoError(t, f.Apply(ctx, reg, store))

	raw, err := store.GetOption(ctx, sixlab.OptionMonthlyBudget)
	require.NoError(t, err)
	var budget float64
	require.NoError(t, json.Unmarshal(raw, &budget))
	assert.Equal(t, 25.5, budget)

	p, err := reg.Get(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", p.Config().GetString(sixlab.ConfigAPIKey))
	assert.Equal(t, "gpt-4o", p.Config().GetString(sixlab.ConfigModel))

	stored, err := sixlab.LoadProviderConfig(ctx, store, "mock")
	require.NoError(t, err)
	assert.Equal(t, 0.2, stored.GetFloat(sixlab.ConfigTemperature, 0))
}

func TestFile_ApplyStopsOnInvalidProvider(t *testing.T) {
	reg, store := newTestRegistry(t)

	f, err := Parse([]byte("providers:\n  openai:\n    model: gpt-4o\n"))
	require.NoError(t, err)

	err = f.Apply(context.Background(), reg, store)
	assert.ErrorIs(t, err, sixlab.ErrRequiredFieldMissing)
}
