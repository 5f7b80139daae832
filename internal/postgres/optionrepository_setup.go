// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"
)

type OptionRepository struct {
	options *optionRepositoryOptions
}

// NewOptionRepository creates a new [OptionRepository].
func NewOptionRepository(options ...OptionRepositoryOption) (*OptionRepository, error) {
	opts := defaultOptionRepositoryOptions
	for _, opt := range GlobalOptionRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &OptionRepository{
		options: &opts,
	}, nil
}

type optionRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultOptionRepositoryOptions = optionRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalOptionRepositoryOptions is a list of [OptionRepositoryOption]s that are applied to all [OptionRepository]s.
var GlobalOptionRepositoryOptions []OptionRepositoryOption

// OptionRepositoryOption is an option for configuring a [OptionRepository].
type OptionRepositoryOption interface {
	apply(*optionRepositoryOptions)
}

// funcOptionRepositoryOption is a [OptionRepositoryOption] that calls a function.
// It is used to wrap a function, so it satisfies the [OptionRepositoryOption] interface.
type funcOptionRepositoryOption struct {
	f func(*optionRepositoryOptions)
}

func (fdo *funcOptionRepositoryOption) apply(opts *optionRepositoryOptions) {
	fdo.f(opts)
}

func newFuncOptionRepositoryOption(f func(*optionRepositoryOptions)) *funcOptionRepositoryOption {
	return &funcOptionRepositoryOption{
		f: f,
	}
}

// WithOptionRepositoryLogger returns a [OptionRepositoryOption] that uses the provided logger.
func WithOptionRepositoryLogger(logger *slog.Logger) OptionRepositoryOption {
	return newFuncOptionRepositoryOption(func(opts *optionRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithOptionRepositoryDb returns a [OptionRepositoryOption] that uses the provided database connection.
func WithOptionRepositoryDb(db PgxPoolInterface) OptionRepositoryOption {
	return newFuncOptionRepositoryOption(func(opts *optionRepositoryOptions) {
		opts.Db = db
	})
}
