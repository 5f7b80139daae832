// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"
)

type UsageStatsRepository struct {
	options *usageStatsRepositoryOptions
}

// NewUsageStatsRepository creates a new [UsageStatsRepository].
func NewUsageStatsRepository(options ...UsageStatsRepositoryOption) (*UsageStatsRepository, error) {
	opts := defaultUsageStatsRepositoryOptions
	for _, opt := range GlobalUsageStatsRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &UsageStatsRepository{
		options: &opts,
	}, nil
}

type usageStatsRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultUsageStatsRepositoryOptions = usageStatsRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalUsageStatsRepositoryOptions is a list of [UsageStatsRepositoryOption]s that are applied to all [UsageStatsRepository]s.
var GlobalUsageStatsRepositoryOptions []UsageStatsRepositoryOption

// UsageStatsRepositoryOption is an option for configuring a [UsageStatsRepository].
type UsageStatsRepositoryOption interface {
	apply(*usageStatsRepositoryOptions)
}

// funcUsageStatsRepositoryOption is a [UsageStatsRepositoryOption] that calls a function.
// It is used to wrap a function, so it satisfies the [UsageStatsRepositoryOption] interface.
type funcUsageStatsRepositoryOption struct {
	f func(*usageStatsRepositoryOptions)
}

func (fdo *funcUsageStatsRepositoryOption) apply(opts *usageStatsRepositoryOptions) {
	fdo.f(opts)
}

func newFuncUsageStatsRepositoryOption(f func(*usageStatsRepositoryOptions)) *funcUsageStatsRepositoryOption {
	return &funcUsageStatsRepositoryOption{
		f: f,
	}
}

// WithUsageStatsRepositoryLogger returns a [UsageStatsRepositoryOption] that uses the provided logger.
func WithUsageStatsRepositoryLogger(logger *slog.Logger) UsageStatsRepositoryOption {
	return newFuncUsageStatsRepositoryOption(func(opts *usageStatsRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithUsageStatsRepositoryDb returns a [UsageStatsRepositoryOption] that uses the provided database connection.
func WithUsageStatsRepositoryDb(db PgxPoolInterface) UsageStatsRepositoryOption {
	return newFuncUsageStatsRepositoryOption(func(opts *usageStatsRepositoryOptions) {
		opts.Db = db
	})
}
