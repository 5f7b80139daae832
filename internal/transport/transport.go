// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package transport performs the HTTP exchange with AI backends.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MadsRC/sixlab"
)

// DefaultMaxResponseBytes caps how much of a response body is read.
const DefaultMaxResponseBytes = 10 << 20

// Request is a single call to an AI backend.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	// Timeout bounds the whole exchange. Zero means sixlab.DefaultTimeout.
	Timeout time.Duration
}

// Response is the raw answer of an AI backend. Non-2xx answers are returned
// as responses, not errors.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	Elapsed    time.Duration
}

// ElapsedMs returns Elapsed in whole milliseconds.
func (r Response) ElapsedMs() int64 {
	return r.Elapsed.Milliseconds()
}

// Transport issues requests to AI backends. Network failures are returned as
// *sixlab.TransportError; an expired deadline sets its Timeout flag.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Do(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	client           *http.Client
	userAgent        string
	maxResponseBytes int64
	logger           *slog.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// Option configures HTTPTransport behavior
type Option func(*HTTPTransport)

// WithHTTPClient replaces the instrumented default client
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(t *HTTPTransport) {
		t.userAgent = userAgent
	}
}

// WithMaxResponseBytes caps the number of response bytes read
func WithMaxResponseBytes(n int64) Option {
	return func(t *HTTPTransport) {
		t.maxResponseBytes = n
	}
}

// WithLogger sets the logger for the transport
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// New creates an HTTPTransport. The default client is instrumented with
// OpenTelemetry and relies on per-request deadlines instead of a client timeout.
func New(options ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent:        sixlab.UserAgent(),
		maxResponseBytes: DefaultMaxResponseBytes,
		logger:           slog.Default(),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Do sends req and reads the full response body.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = sixlab.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Response{}, &sixlab.TransportError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		elapsed := time.Since(start)
		terr := classify(ctx, err)
		t.logger.Debug("AI backend request failed",
			"method", method,
			"host", httpReq.URL.Host,
			"timeout", terr.Timeout,
			"elapsed", elapsed,
			"error", err)
		return Response{Elapsed: elapsed}, terr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseBytes))
	elapsed := time.Since(start)
	if err != nil {
		return Response{StatusCode: resp.StatusCode, Elapsed: elapsed}, classify(ctx, fmt.Errorf("failed to read response body: %w", err))
	}

	t.logger.Debug("AI backend request completed",
		"method", method,
		"host", httpReq.URL.Host,
		"status", resp.StatusCode,
		"elapsed", elapsed)

	return Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Headers:    resp.Header,
		Elapsed:    elapsed,
	}, nil
}

func classify(ctx context.Context, err error) *sixlab.TransportError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &sixlab.TransportError{Timeout: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &sixlab.TransportError{Timeout: true, Err: err}
	}
	return &sixlab.TransportError{Err: err}
}
