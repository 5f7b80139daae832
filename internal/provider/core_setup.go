// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package provider

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/guard"
	"github.com/MadsRC/sixlab/internal/memstore"
	"github.com/MadsRC/sixlab/internal/monitoring"
	"github.com/MadsRC/sixlab/internal/prompt"
	"github.com/MadsRC/sixlab/internal/ratelimit"
	"github.com/MadsRC/sixlab/internal/transport"
	"github.com/MadsRC/sixlab/internal/usage"
)

// Core implements sixlab.Provider for any Backend. Concrete providers embed it.
type Core struct {
	desc     Descriptor
	backend  Backend
	composer *prompt.Composer
	options  *coreOptions

	mu     sync.RWMutex
	config sixlab.ProviderConfig
}

var _ sixlab.Provider = (*Core)(nil)

// New creates a new [Core] for desc and backend. The initial config is the
// descriptor defaults overlaid with [WithConfig]; it is validated when an
// operation runs, not here, so a provider can be built before its API key is set.
func New(desc Descriptor, backend Backend, options ...Option) (*Core, error) {
	opts := defaultCoreOptions
	for _, opt := range GlobalOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	if opts.Transport == nil {
		opts.Transport = transport.New(transport.WithLogger(opts.Logger))
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewLimiter(ratelimit.NewMemoryStore(0), ratelimit.WithLimiterLogger(opts.Logger))
	}
	if opts.Accountant == nil {
		opts.Accountant = usage.NewAccountant(memstore.NewUsageStatsStore(), usage.WithAccountantLogger(opts.Logger))
	}
	if opts.Guard == nil {
		opts.Guard = guard.MustNew(guard.WithLogger(opts.Logger))
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	prompts := maps.Clone(desc.Prompts)
	if prompts == nil {
		prompts = sixlab.PromptTemplates{}
	}
	maps.Copy(prompts, opts.Prompts)

	return &Core{
		desc:     desc,
		backend:  backend,
		composer: prompt.New(prompts),
		options:  &opts,
		config:   desc.DefaultConfig.Merge(opts.Config),
	}, nil
}

type coreOptions struct {
	Logger       *slog.Logger
	Config       sixlab.ProviderConfig
	Prompts      sixlab.PromptTemplates
	Transport    transport.Transport
	Limiter      *ratelimit.Limiter
	Accountant   *usage.Accountant
	Guard        *guard.Guard
	Interactions sixlab.InteractionLogger
	Metrics      *monitoring.AIMetrics
	Clock        func() time.Time
}

var defaultCoreOptions = coreOptions{
	Logger: slog.Default(),
}

// GlobalOptions is a list of [Option]s that are applied to all [Core]s.
var GlobalOptions []Option

// Option is an option for configuring a [Core].
type Option interface {
	apply(*coreOptions)
}

// funcOption is an [Option] that calls a function.
// It is used to wrap a function, so it satisfies the [Option] interface.
type funcOption struct {
	f func(*coreOptions)
}

func (fdo *funcOption) apply(opts *coreOptions) {
	fdo.f(opts)
}

func newFuncOption(f func(*coreOptions)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithLogger returns an [Option] that uses the provided logger.
func WithLogger(logger *slog.Logger) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Logger = logger
	})
}

// WithConfig returns an [Option] that overlays cfg on the provider's default config.
func WithConfig(cfg sixlab.ProviderConfig) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Config = cfg.Clone()
	})
}

// WithPrompts returns an [Option] that overrides individual prompt templates.
func WithPrompts(prompts sixlab.PromptTemplates) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Prompts = maps.Clone(prompts)
	})
}

// WithTransport returns an [Option] that sends backend requests through t.
func WithTransport(t transport.Transport) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Transport = t
	})
}

// WithLimiter returns an [Option] that uses the provided rate limiter.
// Providers sharing a limiter share its counter store.
func WithLimiter(l *ratelimit.Limiter) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Limiter = l
	})
}

// WithAccountant returns an [Option] that records usage through a.
func WithAccountant(a *usage.Accountant) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Accountant = a
	})
}

// WithGuard returns an [Option] that uses the provided content guard.
func WithGuard(g *guard.Guard) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Guard = g
	})
}

// WithInteractionLogger returns an [Option] that emits interaction records to l.
func WithInteractionLogger(l sixlab.InteractionLogger) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Interactions = l
	})
}

// WithMetrics returns an [Option] that records metrics in m.
func WithMetrics(m *monitoring.AIMetrics) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Metrics = m
	})
}

// WithClock returns an [Option] that replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return newFuncOption(func(opts *coreOptions) {
		opts.Clock = now
	})
}
