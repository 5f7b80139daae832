// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"
)

type InteractionRepository struct {
	options *interactionRepositoryOptions
}

// NewInteractionRepository creates a new [InteractionRepository].
func NewInteractionRepository(options ...InteractionRepositoryOption) (*InteractionRepository, error) {
	opts := defaultInteractionRepositoryOptions
	for _, opt := range GlobalInteractionRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &InteractionRepository{
		options: &opts,
	}, nil
}

type interactionRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultInteractionRepositoryOptions = interactionRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalInteractionRepositoryOptions is a list of [InteractionRepositoryOption]s that are applied to all [InteractionRepository]s.
var GlobalInteractionRepositoryOptions []InteractionRepositoryOption

// InteractionRepositoryOption is an option for configuring a [InteractionRepository].
type InteractionRepositoryOption interface {
	apply(*interactionRepositoryOptions)
}

// funcInteractionRepositoryOption is a [InteractionRepositoryOption] that calls a function.
// It is used to wrap a function, so it satisfies the [InteractionRepositoryOption] interface.
type funcInteractionRepositoryOption struct {
	f func(*interactionRepositoryOptions)
}

func (fdo *funcInteractionRepositoryOption) apply(opts *interactionRepositoryOptions) {
	fdo.f(opts)
}

func newFuncInteractionRepositoryOption(f func(*interactionRepositoryOptions)) *funcInteractionRepositoryOption {
	return &funcInteractionRepositoryOption{
		f: f,
	}
}

// WithInteractionRepositoryLogger returns a [InteractionRepositoryOption] that uses the provided logger.
func WithInteractionRepositoryLogger(logger *slog.Logger) InteractionRepositoryOption {
	return newFuncInteractionRepositoryOption(func(opts *interactionRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithInteractionRepositoryDb returns a [InteractionRepositoryOption] that uses the provided database connection.
func WithInteractionRepositoryDb(db PgxPoolInterface) InteractionRepositoryOption {
	return newFuncInteractionRepositoryOption(func(opts *interactionRepositoryOptions) {
		opts.Db = db
	})
}
