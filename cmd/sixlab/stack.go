// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/audit"
	"github.com/MadsRC/sixlab/internal/config"
	"github.com/MadsRC/sixlab/internal/guard"
	"github.com/MadsRC/sixlab/internal/memstore"
	"github.com/MadsRC/sixlab/internal/monitoring"
	"github.com/MadsRC/sixlab/internal/postgres"
	"github.com/MadsRC/sixlab/internal/provider"
	"github.com/MadsRC/sixlab/internal/ratelimit"
	"github.com/MadsRC/sixlab/internal/registry"
	"github.com/MadsRC/sixlab/internal/usage"
)

// optionCacheTTL bounds how long a provider config change on another
// instance takes to be seen.
const optionCacheTTL = 30 * time.Second

// stack is the wired set of stores and services shared by all commands.
type stack struct {
	logger      *slog.Logger
	configStore sixlab.ConfigStore
	registry    *registry.Registry
	accountant  *usage.Accountant
	metrics     *monitoring.AIMetrics
	file        *config.File

	closers []func(context.Context) error
}

// Close releases resources in reverse creation order.
func (s *stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *stack) onClose(f func(context.Context) error) {
	s.closers = append(s.closers, f)
}

// buildStack picks Postgres or in-memory stores depending on --database-url,
// Redis or in-memory rate counters depending on --redis-url, and enables
// metrics export when --otlp-endpoint is set.
func buildStack(ctx context.Context, c *cli.Command, logger *slog.Logger) (_ *stack, err error) {
	s := &stack{logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close(context.WithoutCancel(ctx))
		}
	}()

	if path := c.String("config"); path != "" {
		f, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		s.file = &f
		logger.Info("Loaded provider configuration file", "path", path, "providers", len(f.Providers))
	}

	if endpoint := c.String("otlp-endpoint"); endpoint != "" {
		manager, err := monitoring.NewManager(monitoring.Config{
			ServiceName:    "sixlab-ai",
			ServiceVersion: sixlab.Version,
			OTLPEndpoint:   endpoint,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create monitoring manager: %w", err)
		}
		s.metrics = manager.GetAIMetrics()
		s.onClose(manager.Shutdown)
	}

	var (
		statsStore   sixlab.UsageStatsStore
		interactions sixlab.InteractionLogger = audit.NewSlogLogger(logger)
	)

	if dbURL := c.String("database-url"); dbURL != "" {
		pool, err := postgres.Connect(ctx, dbURL)
		if err != nil {
			return nil, err
		}
		s.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		logger.Info("Database connection established")

		if err := postgres.RunMigrations(logger, dbURL); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}

		if s.configStore, statsStore, interactions, err = postgresStores(s, pool, logger); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("No database configured - configuration and usage are kept in memory")
		s.configStore = memstore.NewConfigStore()
		statsStore = memstore.NewUsageStatsStore()
	}

	counters, err := counterStore(s, c.String("redis-url"), logger)
	if err != nil {
		return nil, err
	}

	observers := []sixlab.BudgetObserver{audit.BudgetLogger{Logger: logger}}
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}

	s.accountant = usage.NewAccountant(statsStore,
		usage.WithAccountantLogger(logger),
		usage.WithConfigStore(s.configStore),
		usage.WithBudgetObserver(observers...),
	)

	g, err := guard.New(guard.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create content guard: %w", err)
	}

	providerOptions := []provider.Option{
		provider.WithLimiter(ratelimit.NewLimiter(counters, ratelimit.WithLimiterLogger(logger))),
		provider.WithAccountant(s.accountant),
		provider.WithGuard(g),
		provider.WithInteractionLogger(interactions),
	}
	if s.metrics != nil {
		providerOptions = append(providerOptions, provider.WithMetrics(s.metrics))
	}
	if s.file != nil && len(s.file.Prompts) > 0 {
		providerOptions = append(providerOptions, provider.WithPrompts(s.file.Prompts))
	}

	s.registry = registry.New(
		registry.WithLogger(logger),
		registry.WithConfigStore(s.configStore),
		registry.WithProviderOptions(providerOptions...),
	)
	if err := registry.RegisterBuiltins(s.registry); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	return s, nil
}

func postgresStores(s *stack, pool *pgxpool.Pool, logger *slog.Logger) (sixlab.ConfigStore, sixlab.UsageStatsStore, sixlab.InteractionLogger, error) {
	optionRepo, err := postgres.NewOptionRepository(
		postgres.WithOptionRepositoryLogger(logger),
		postgres.WithOptionRepositoryDb(pool),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create option repository: %w", err)
	}
	cachedOptions := postgres.NewCachedOptionRepository(optionRepo, optionCacheTTL)
	s.onClose(func(context.Context) error {
		cachedOptions.Close()
		return nil
	})

	statsRepo, err := postgres.NewUsageStatsRepository(
		postgres.WithUsageStatsRepositoryLogger(logger),
		postgres.WithUsageStatsRepositoryDb(pool),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create usage stats repository: %w", err)
	}

	interactionRepo, err := postgres.NewInteractionRepository(
		postgres.WithInteractionRepositoryLogger(logger),
		postgres.WithInteractionRepositoryDb(pool),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create interaction repository: %w", err)
	}

	asyncOpts := []audit.AsyncOption{audit.WithLogger(logger)}
	if s.metrics != nil {
		asyncOpts = append(asyncOpts, audit.WithMetrics(s.metrics))
	}
	asyncLogger := audit.NewAsyncLogger(interactionRepo, audit.DefaultQueueSize, asyncOpts...)
	s.onClose(asyncLogger.Shutdown)

	return cachedOptions, statsRepo, audit.Multi{audit.NewSlogLogger(logger), asyncLogger}, nil
}

func counterStore(s *stack, redisURL string, logger *slog.Logger) (ratelimit.CounterStore, error) {
	if redisURL == "" {
		store := ratelimit.NewMemoryStore(time.Minute)
		s.onClose(func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	s.onClose(func(context.Context) error {
		return client.Close()
	})
	logger.Info("Using Redis for rate limit counters", "addr", opts.Addr)
	return ratelimit.NewRedisStore(client), nil
}

// applyConfigFile stores the configuration file, if any.
func (s *stack) applyConfigFile(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	if err := s.file.Validate(ctx, s.registry); err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	return s.file.Apply(ctx, s.registry, s.configStore)
}
