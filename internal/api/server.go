// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package api exposes the AI providers of a registry over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/MadsRC/sixlab/internal/registry"
	"github.com/MadsRC/sixlab/internal/usage"
)

type Server struct {
	options    *serverOptions
	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer creates a new [Server]. A registry is required.
func NewServer(options ...ServerOption) (*Server, error) {
	opts := defaultServerOptions
	for _, opt := range GlobalServerOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}

	s := &Server{
		options: &opts,
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           7200,
	})

	s.httpServer = &http.Server{
		Addr: opts.Addr,
		// Use h2c so we can serve HTTP/2 without TLS.
		Handler:      h2c.NewHandler(corsHandler.Handler(s.requestLogger(s.mux)), &http2.Server{}),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return s, nil
}

type serverOptions struct {
	Logger         *slog.Logger
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	Registry       *registry.Registry
	Accountant     *usage.Accountant
}

var defaultServerOptions = serverOptions{
	Logger:         slog.Default(),
	Addr:           ":8080",
	ReadTimeout:    30 * time.Second,
	WriteTimeout:   330 * time.Second,
	IdleTimeout:    120 * time.Second,
	AllowedOrigins: []string{"http://localhost:3000"},
}

// GlobalServerOptions is a list of [ServerOption]s that are applied to all [Server]s.
var GlobalServerOptions []ServerOption

// ServerOption is an option for configuring a [Server].
type ServerOption interface {
	apply(*serverOptions)
}

// funcServerOption is a [ServerOption] that calls a function.
// It is used to wrap a function, so it satisfies the [ServerOption] interface.
type funcServerOption struct {
	f func(*serverOptions)
}

func (fdo *funcServerOption) apply(opts *serverOptions) {
	fdo.f(opts)
}

func newFuncServerOption(f func(*serverOptions)) *funcServerOption {
	return &funcServerOption{
		f: f,
	}
}

// WithServerLogger returns a [ServerOption] that uses the provided logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.Logger = logger
	})
}

// WithServerAddr returns a [ServerOption] that sets the listen address.
func WithServerAddr(addr string) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.Addr = addr
	})
}

// WithServerReadTimeout returns a [ServerOption] that sets the read timeout.
func WithServerReadTimeout(timeout time.Duration) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.ReadTimeout = timeout
	})
}

// WithServerWriteTimeout returns a [ServerOption] that sets the write timeout.
// It should exceed the largest provider timeout.
func WithServerWriteTimeout(timeout time.Duration) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.WriteTimeout = timeout
	})
}

// WithServerIdleTimeout returns a [ServerOption] that sets the idle timeout.
func WithServerIdleTimeout(timeout time.Duration) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.IdleTimeout = timeout
	})
}

// WithAllowedOrigins returns a [ServerOption] that sets the CORS origins.
func WithAllowedOrigins(origins ...string) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.AllowedOrigins = origins
	})
}

// WithRegistry returns a [ServerOption] that serves the providers of r.
func WithRegistry(r *registry.Registry) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.Registry = r
	})
}

// WithAccountant returns a [ServerOption] that enables the usage endpoint.
func WithAccountant(a *usage.Accountant) ServerOption {
	return newFuncServerOption(func(opts *serverOptions) {
		opts.Accountant = a
	})
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /v1/providers", s.handleListProviders)
	s.mux.HandleFunc("GET /v1/providers/{type}/config-fields", s.handleConfigFields)
	s.mux.HandleFunc("GET /v1/providers/{type}/config", s.handleGetConfig)
	s.mux.HandleFunc("PUT /v1/providers/{type}/config", s.handlePutConfig)
	s.mux.HandleFunc("POST /v1/providers/{type}/test", s.handleTestConnection)
	s.mux.HandleFunc("POST /v1/providers/{type}/operations/{operation}", s.handleOperation)

	if s.options.Accountant != nil {
		s.mux.HandleFunc("GET /v1/providers/{type}/usage", s.handleUsage)
	} else {
		s.options.Logger.Warn("No accountant provided - usage routes will not be available")
	}
}

// Handler returns the fully wrapped handler the server listens with.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetMux returns the HTTP mux for the server
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.options.Logger.Info("Starting API server", "addr", s.options.Addr)

	listener, err := net.Listen("tcp", s.options.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.Addr, err)
	}

	serverErrors := make(chan error, 1)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.WithoutCancel(ctx))
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.options.Logger.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.options.Logger.Error("Failed to gracefully shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.options.Logger.Info("API server stopped")
	return nil
}
