// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/api"
	"github.com/MadsRC/sixlab/internal/config"
	"github.com/MadsRC/sixlab/internal/postgres"
	"github.com/MadsRC/sixlab/internal/registry"
	"github.com/MadsRC/sixlab/internal/services"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("Failed to run command", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "sixlab",
		Usage:   "AI provider governance for virtual lab sessions",
		Version: sixlab.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the YAML provider configuration file",
				Sources: cli.EnvVars("SIXLAB_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL database connection URL; configuration and usage are kept in memory when empty",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for rate limit counters shared between instances",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "otlp-endpoint",
				Usage:   "OTLP/gRPC endpoint for metrics export",
				Sources: cli.EnvVars("OTLP_ENDPOINT"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("SIXLAB_DEBUG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the AI provider API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen",
						Value:   ":8080",
						Usage:   "Address for the API to listen on",
						Sources: cli.EnvVars("SIXLAB_LISTEN"),
					},
					&cli.StringSliceFlag{
						Name:    "allowed-origin",
						Value:   []string{"http://localhost:3000"},
						Usage:   "Origin allowed to call the API from a browser",
						Sources: cli.EnvVars("SIXLAB_ALLOWED_ORIGINS"),
					},
					&cli.DurationFlag{
						Name:    "report-interval",
						Value:   services.DefaultReportInterval,
						Usage:   "How often provider usage is reported",
						Sources: cli.EnvVars("SIXLAB_REPORT_INTERVAL"),
					},
				},
				Action: runServe,
			},
			{
				Name:   "validate-config",
				Usage:  "Validate the provider configuration file without storing it",
				Action: runValidateConfig,
			},
			{
				Name:      "test-connection",
				Usage:     "Send a minimal request to a provider",
				ArgsUsage: "<provider>",
				Action:    runTestConnection,
			},
			{
				Name:      "usage",
				Usage:     "Print the monthly usage of one or all providers",
				ArgsUsage: "[provider]",
				Action:    runUsage,
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "down",
						Usage: "Roll back all migrations instead",
					},
				},
				Action: runMigrate,
			},
		},
	}
}

func newLogger(c *cli.Command) *slog.Logger {
	logLevel := slog.LevelInfo
	if c.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func runServe(ctx context.Context, c *cli.Command) error {
	logger := newLogger(c)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, c, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Close(shutdownCtx); err != nil {
			logger.Error("Failed to release resources", "error", err)
		}
	}()

	if err := s.applyConfigFile(ctx); err != nil {
		return err
	}

	server, err := api.NewServer(
		api.WithServerLogger(logger),
		api.WithServerAddr(c.String("listen")),
		api.WithAllowedOrigins(c.StringSlice("allowed-origin")...),
		api.WithRegistry(s.registry),
		api.WithAccountant(s.accountant),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	reporter := services.NewUsageReporter(s.registry, s.accountant,
		services.WithReporterLogger(logger),
		services.WithReporterMetrics(s.metrics),
		services.WithReportInterval(c.Duration("report-interval")),
	)
	reporter.Start(ctx)
	defer reporter.Stop()

	logger.Info("sixlab started", "version", sixlab.Version, "providers", s.registry.Types())
	return server.Start(ctx)
}

func runValidateConfig(ctx context.Context, c *cli.Command) error {
	logger := newLogger(c)

	path := c.String("config")
	if path == "" {
		return errors.New("--config or SIXLAB_CONFIG is required")
	}
	f, err := config.Load(path)
	if err != nil {
		return err
	}

	reg := registry.New(registry.WithLogger(logger))
	if err := registry.RegisterBuiltins(reg); err != nil {
		return err
	}
	if err := f.Validate(ctx, reg); err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}

	_, err = fmt.Fprintf(stdout(c), "%s: configuration is valid (%d providers)\n", path, len(f.Providers))
	return err
}

func runTestConnection(ctx context.Context, c *cli.Command) error {
	logger := newLogger(c)

	providerType := c.Args().First()
	if providerType == "" {
		return errors.New("provider argument is required")
	}

	s, err := buildStack(ctx, c, logger)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(context.WithoutCancel(ctx)) }()

	if err := s.applyConfigFile(ctx); err != nil {
		return err
	}

	p, err := s.registry.Get(ctx, providerType)
	if err != nil {
		return err
	}

	result, err := p.TestConnection(ctx)
	if printErr := printJSON(stdout(c), result); printErr != nil {
		return printErr
	}
	return err
}

func runUsage(ctx context.Context, c *cli.Command) error {
	logger := newLogger(c)

	s, err := buildStack(ctx, c, logger)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(context.WithoutCancel(ctx)) }()

	types := s.registry.Types()
	if providerType := c.Args().First(); providerType != "" {
		if _, err := s.registry.Get(ctx, providerType); err != nil {
			return err
		}
		types = []string{providerType}
	}

	out := make(map[string]sixlab.UsageStats, len(types))
	for _, providerType := range types {
		stats, err := s.accountant.GetUsageStats(ctx, providerType)
		if err != nil {
			return err
		}
		out[providerType] = stats
	}
	return printJSON(stdout(c), map[string]any{
		"monthly_budget": s.accountant.MonthlyBudget(ctx),
		"providers":      out,
	})
}

func runMigrate(_ context.Context, c *cli.Command) error {
	logger := newLogger(c)

	dbURL := c.String("database-url")
	if dbURL == "" {
		return errors.New("--database-url or DATABASE_URL is required")
	}

	if c.Bool("down") {
		return postgres.RollbackMigrations(logger, dbURL)
	}
	return postgres.RunMigrations(logger, dbURL)
}

func stdout(c *cli.Command) io.Writer {
	if w := c.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
