// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package registry

import (
	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/provider"
	"github.com/MadsRC/sixlab/internal/provider/anthropic"
	"github.com/MadsRC/sixlab/internal/provider/mock"
	"github.com/MadsRC/sixlab/internal/provider/openai"
)

// RegisterBuiltins registers the providers that ship with sixlab.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Factory{
		openai.Type: func(options ...provider.Option) (sixlab.Provider, error) {
			return openai.New(options...)
		},
		anthropic.Type: func(options ...provider.Option) (sixlab.Provider, error) {
			return anthropic.New(options...)
		},
		mock.Type: func(options ...provider.Option) (sixlab.Provider, error) {
			return mock.New(options...)
		},
	}
	for t, f := range builtins {
		if err := r.Register(t, f); err != nil {
			return err
		}
	}
	return nil
}
