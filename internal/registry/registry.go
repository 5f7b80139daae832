// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package registry maps provider identifiers to provider instances whose
// configuration lives in a sixlab.ConfigStore.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/memstore"
	"github.com/MadsRC/sixlab/internal/provider"
)

// Factory creates a provider. The registry passes its shared options followed
// by the stored configuration.
type Factory func(options ...provider.Option) (sixlab.Provider, error)

// Info describes a registered provider.
type Info struct {
	Type         string               `json:"type"`
	DisplayName  string               `json:"display_name"`
	Description  string               `json:"description"`
	ConfigFields []sixlab.ConfigField `json:"config_fields"`
}

type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]sixlab.Provider
	options   *registryOptions
}

func New(options ...Option) *Registry {
	opts := defaultRegistryOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	if opts.ConfigStore == nil {
		opts.ConfigStore = memstore.NewConfigStore()
	}

	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]sixlab.Provider),
		options:   &opts,
	}
}

type registryOptions struct {
	Logger          *slog.Logger
	ConfigStore     sixlab.ConfigStore
	ProviderOptions []provider.Option
}

var defaultRegistryOptions = registryOptions{
	Logger: slog.Default(),
}

// Option is an option for configuring a [Registry].
type Option interface {
	apply(*registryOptions)
}

type funcOption struct {
	f func(*registryOptions)
}

func (fdo *funcOption) apply(opts *registryOptions) {
	fdo.f(opts)
}

func newFuncOption(f func(*registryOptions)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithLogger returns an [Option] that uses the provided logger.
func WithLogger(logger *slog.Logger) Option {
	return newFuncOption(func(opts *registryOptions) {
		opts.Logger = logger
	})
}

// WithConfigStore returns an [Option] that reads provider configuration from store.
func WithConfigStore(store sixlab.ConfigStore) Option {
	return newFuncOption(func(opts *registryOptions) {
		opts.ConfigStore = store
	})
}

// WithProviderOptions returns an [Option] that passes options to every
// provider the registry builds, typically the shared limiter, accountant and
// interaction logger.
func WithProviderOptions(options ...provider.Option) Option {
	return newFuncOption(func(opts *registryOptions) {
		opts.ProviderOptions = append(opts.ProviderOptions, options...)
	})
}

// Register adds a provider factory under providerType.
func (r *Registry) Register(providerType string, f Factory) error {
	if providerType == "" {
		return errors.New("provider type cannot be empty")
	}
	if f == nil {
		return errors.New("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[providerType]; exists {
		return fmt.Errorf("%w: provider %s", sixlab.ErrDuplicateEntry, providerType)
	}
	r.factories[providerType] = f
	return nil
}

// Types returns the registered provider identifiers in sorted order.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Get returns the provider registered under providerType, building it from
// the stored configuration on first use. A missing stored configuration
// leaves the provider on its defaults.
func (r *Registry) Get(ctx context.Context, providerType string) (sixlab.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[providerType]; ok {
		return p, nil
	}

	f, ok := r.factories[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sixlab.ErrUnknownProvider, providerType)
	}

	cfg, err := sixlab.LoadProviderConfig(ctx, r.options.ConfigStore, providerType)
	if err != nil && !errors.Is(err, sixlab.ErrNotFound) {
		return nil, fmt.Errorf("failed to load config for provider %s: %w", providerType, err)
	}

	opts := slices.Clone(r.options.ProviderOptions)
	opts = append(opts, provider.WithLogger(r.options.Logger.With("provider", providerType)))
	if cfg != nil {
		opts = append(opts, provider.WithConfig(cfg))
	}

	p, err := f(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", providerType, err)
	}

	r.instances[providerType] = p
	r.options.Logger.Debug("Provider instance created", "provider", providerType)
	return p, nil
}

// Reload drops the cached instance of providerType so the next Get rebuilds
// it from the stored configuration.
func (r *Registry) Reload(providerType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, providerType)
}

// Configure applies cfg on top of the stored configuration of providerType,
// validates the result, stores it and reloads the provider. Secrets still
// holding the redaction placeholder keep their stored value, and a null value
// resets its key to the provider default.
func (r *Registry) Configure(ctx context.Context, providerType string, cfg sixlab.ProviderConfig) error {
	p, err := r.Get(ctx, providerType)
	if err != nil {
		return err
	}

	stored, err := sixlab.LoadProviderConfig(ctx, r.options.ConfigStore, providerType)
	if err != nil && !errors.Is(err, sixlab.ErrNotFound) {
		return fmt.Errorf("failed to load config for provider %s: %w", providerType, err)
	}

	defaults := p.DefaultConfig()
	merged := defaults.Merge(stored)
	for k, v := range cfg.WithoutRedacted() {
		if v != nil {
			merged[k] = v
			continue
		}
		if d, ok := defaults[k]; ok {
			merged[k] = d
		} else {
			delete(merged, k)
		}
	}

	if err := p.ValidateConfig(merged); err != nil {
		return err
	}
	if err := sixlab.SaveProviderConfig(ctx, r.options.ConfigStore, providerType, merged); err != nil {
		return fmt.Errorf("failed to store config for provider %s: %w", providerType, err)
	}

	r.Reload(providerType)
	r.options.Logger.Info("Provider configured", "provider", providerType)
	return nil
}

// Describe returns metadata and configuration schema of every registered provider.
func (r *Registry) Describe(ctx context.Context) ([]Info, error) {
	types := r.Types()
	infos := make([]Info, 0, len(types))
	for _, t := range types {
		p, err := r.Get(ctx, t)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Type:         p.Type(),
			DisplayName:  p.DisplayName(),
			Description:  p.Description(),
			ConfigFields: p.ConfigFields(),
		})
	}
	return infos, nil
}
