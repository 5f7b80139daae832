// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/memstore"
	"github.com/MadsRC/sixlab/internal/provider"
	"github.com/MadsRC/sixlab/internal/provider/mock"
	"github.com/MadsRC/sixlab/internal/registry"
	"github.com/MadsRC/sixlab/internal/usage"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	server     *Server
	accountant *usage.Accountant
}

func newTestServer(t *testing.T, providerOptions ...provider.Option) *testServer {
	t.Helper()

	accountant := usage.NewAccountant(memstore.NewUsageStatsStore(), usage.WithAccountantLogger(discardLogger))
	opts := append([]provider.Option{provider.WithAccountant(accountant)}, providerOptions...)

	reg := registry.New(
		registry.WithLogger(discardLogger),
		registry.WithProviderOptions(opts...),
	)
	require.NoError(t, registry.RegisterBuiltins(reg))

	server, err := NewServer(
		WithServerLogger(discardLogger),
		WithRegistry(reg),
		WithAccountant(accountant),
	)
	require.NoError(t, err)
	return &testServer{server: server, accountant: accountant}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	_, err := NewServer()
	assert.Error(t, err, "a registry is required")

	reg := registry.New(registry.WithLogger(discardLogger))
	s, err := NewServer(WithRegistry(reg), WithServerLogger(discardLogger))
	require.NoError(t, err)
	assert.Equal(t, ":8080", s.options.Addr)
	assert.Equal(t, 30*time.Second, s.options.ReadTimeout)
	assert.Equal(t, 330*time.Second, s.options.WriteTimeout)
	assert.Equal(t, 120*time.Second, s.options.IdleTimeout)
	assert.NotNil(t, s.GetMux())

	s, err = NewServer(
		WithRegistry(reg),
		WithServerLogger(discardLogger),
		WithServerAddr(":9090"),
		WithServerReadTimeout(5*time.Second),
		WithServerWriteTimeout(10*time.Second),
		WithServerIdleTimeout(15*time.Second),
		WithAllowedOrigins("https://lab.example.com"),
	)
	require.NoError(t, err)
	assert.Equal(t, ":9090", s.httpServer.Addr)
	assert.Equal(t, 5*time.Second, s.httpServer.ReadTimeout)
	assert.Equal(t, 10*time.Second, s.httpServer.WriteTimeout)
	assert.Equal(t, 15*time.Second, s.httpServer.IdleTimeout)
	assert.Equal(t, []string{"https://lab.example.com"}, s.options.AllowedOrigins)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestServer_ListProviders(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[struct {
		Providers []registry.Info `json:"providers"`
	}](t, w)
	require.Len(t, got.Providers, 3)
	assert.Equal(t, "anthropic", got.Providers[0].Type)
	assert.Equal(t, "mock", got.Providers[1].Type)
	assert.Equal(t, "openai", got.Providers[2].Type)
	assert.NotEmpty(t, got.Providers[2].ConfigFields)
}

func TestServer_ConfigFields(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/providers/openai/config-fields", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[struct {
		ConfigFields []sixlab.ConfigField `json:"config_fields"`
	}](t, w)
	names := make([]string, 0, len(got.ConfigFields))
	for _, f := range got.ConfigFields {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, sixlab.ConfigAPIKey)
	assert.Contains(t, names, sixlab.ConfigRateLimitPerMinute)

	w = ts.do(t, http.MethodGet, "/v1/providers/gemini/config-fields", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Operation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/providers/mock/operations/error_explanation",
		`{"error_message":"% Invalid input detected","command":"show ip rout","device_type":"cisco_ios"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[sixlab.Response](t, w)
	assert.Equal(t, "Mock error_explanation response.", resp.Content)
	assert.Positive(t, resp.TokensUsed)
	assert.Positive(t, resp.CostUSD)

	stats, err := ts.accountant.GetUsageStats(context.Background(), mock.Type)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, resp.TokensUsed, stats.TotalTokens)
}

func TestServer_OperationEmptyBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/providers/mock/operations/chat", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServer_OperationErrors(t *testing.T) {
	tests := []struct {
		name     string
		options  []provider.Option
		path     string
		body     string
		wantCode int
		wantType string
	}{
		{
			name:     "unknown provider",
			path:     "/v1/providers/gemini/operations/chat",
			body:     `{}`,
			wantCode: http.StatusNotFound,
			wantType: "not_found",
		},
		{
			name:     "unknown operation",
			path:     "/v1/providers/mock/operations/summarize",
			body:     `{}`,
			wantCode: http.StatusNotFound,
			wantType: "not_found",
		},
		{
			name:     "malformed body",
			path:     "/v1/providers/mock/operations/chat",
			body:     `{"message":`,
			wantCode: http.StatusBadRequest,
			wantType: "invalid_request",
		},
		{
			name:     "missing api key",
			path:     "/v1/providers/openai/operations/chat",
			body:     `{"message":"hi"}`,
			wantCode: http.StatusBadRequest,
			wantType: "invalid_request",
		},
		{
			name:     "upstream failure",
			options:  []provider.Option{provider.WithTransport(mock.NewResponder(mock.WithStatus(http.StatusUnauthorized, `{"error":"bad key"}`)))},
			path:     "/v1/providers/mock/operations/chat",
			body:     `{"message":"hi"}`,
			wantCode: http.StatusBadGateway,
			wantType: "upstream_error",
		},
		{
			name:     "network failure",
			options:  []provider.Option{provider.WithTransport(mock.NewResponder(mock.WithError(&sixlab.TransportError{Err: errors.New("connection refused")})))},
			path:     "/v1/providers/mock/operations/chat",
			body:     `{"message":"hi"}`,
			wantCode: http.StatusBadGateway,
			wantType: "upstream_error",
		},
		{
			name:     "timeout",
			options:  []provider.Option{provider.WithTransport(mock.NewResponder(mock.WithError(&sixlab.TransportError{Timeout: true, Err: context.DeadlineExceeded})))},
			path:     "/v1/providers/mock/operations/chat",
			body:     `{"message":"hi"}`,
			wantCode: http.StatusGatewayTimeout,
			wantType: "timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.options...)

			w := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			got := decode[errorResponse](t, w)
			assert.Equal(t, tt.wantType, got.Error.Type)
			assert.NotEmpty(t, got.Error.Message)
		})
	}
}

func TestServer_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/v1/providers/mock/config", `{"rate_limit_per_minute":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/v1/providers/mock/operations/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/v1/providers/mock/operations/chat", `{"message":"hi again"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[errorResponse](t, w).Error.Type)
}

func TestServer_DisabledProvider(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/v1/providers/mock/config", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/v1/providers/mock/operations/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_Config(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/v1/providers/openai/config", `{"api_key":"sk-secret","model":"gpt-4o"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "sk-secret")

	w = ts.do(t, http.MethodGet, "/v1/providers/openai/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret")
	got := decode[map[string]any](t, w)
	assert.Equal(t, "gpt-4o", got["model"])

	w = ts.do(t, http.MethodPut, "/v1/providers/openai/config", `{"api_key":"sk-secret","temperature":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The GET body sent back unchanged keeps the stored key.
	w = ts.do(t, http.MethodGet, "/v1/providers/openai/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPut, "/v1/providers/openai/config", w.Body.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPut, "/v1/providers/openai/config", `{"temperature":0.4}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0.4, decode[map[string]any](t, w)["temperature"])

	p, err := ts.server.options.Registry.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", p.Config().GetString(sixlab.ConfigAPIKey))
	assert.Equal(t, "gpt-4o", p.Config().GetString(sixlab.ConfigModel))
}

func TestServer_TestConnection(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/providers/mock/test", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[sixlab.ConnectionResult](t, w)
	assert.True(t, got.Success)
	assert.Equal(t, mock.DefaultModel, got.Model)
}

func TestServer_Usage(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/providers/mock/usage", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[usageResponse](t, w)
	assert.Equal(t, "mock", got.Provider)
	assert.Zero(t, got.TotalRequests)

	ts.do(t, http.MethodPost, "/v1/providers/mock/operations/chat", `{"message":"hi"}`)

	w = ts.do(t, http.MethodGet, "/v1/providers/mock/usage", "")
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[usageResponse](t, w)
	assert.Equal(t, int64(1), got.TotalRequests)

	w = ts.do(t, http.MethodGet, "/v1/providers/gemini/usage", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_CORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/providers", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{sixlab.ErrUnknownProvider, http.StatusNotFound},
		{&sixlab.FieldError{Field: "api_key", Err: sixlab.ErrRequiredFieldMissing}, http.StatusBadRequest},
		{&sixlab.RateLimitError{Provider: "mock", Limit: 1, Window: sixlab.WindowMinute}, http.StatusTooManyRequests},
		{&sixlab.APIError{StatusCode: 500, Body: "boom"}, http.StatusBadGateway},
		{&sixlab.TransportError{Timeout: true, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{sixlab.ErrProviderDisabled, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := classifyError(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
