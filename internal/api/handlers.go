// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MadsRC/sixlab"
)

// maxBodyBytes bounds request bodies. Configuration dumps are the largest
// legitimate payload.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type usageResponse struct {
	Provider string `json:"provider"`
	sixlab.UsageStats
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"ok"}`); err != nil {
		s.options.Logger.Error("Failed to write health response", "error", err)
	}
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	infos, err := s.options.Registry.Describe(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"providers": infos})
}

func (s *Server) handleConfigFields(w http.ResponseWriter, r *http.Request) {
	p, err := s.options.Registry.Get(r.Context(), r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"config_fields": p.ConfigFields()})
}

// handleGetConfig returns the active configuration with secrets redacted.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	p, err := s.options.Registry.Get(r.Context(), r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p.Config())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	providerType := r.PathValue("type")

	var cfg sixlab.ProviderConfig
	if err := decodeBody(r, &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.options.Registry.Configure(r.Context(), providerType, cfg); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.options.Registry.Get(r.Context(), providerType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p.Config())
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	p, err := s.options.Registry.Get(r.Context(), r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := p.TestConnection(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op, err := sixlab.ParseOperation(r.PathValue("operation"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.options.Registry.Get(r.Context(), r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	input := sixlab.Context{}
	if err := decodeBody(r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := p.Invoke(r.Context(), op, input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	providerType := r.PathValue("type")
	if _, err := s.options.Registry.Get(r.Context(), providerType); err != nil {
		s.writeError(w, r, err)
		return
	}

	stats, err := s.options.Accountant.GetUsageStats(r.Context(), providerType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, usageResponse{Provider: providerType, UsageStats: stats})
}

// decodeBody reads a JSON object into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: failed to read request body: %v", sixlab.ErrInvalidArgument, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: request body too large", sixlab.ErrInvalidArgument)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", sixlab.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.options.Logger.Error("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classifyError(err)

	var rle *sixlab.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rle.Window.TTL().Seconds())))
	}

	if status >= http.StatusInternalServerError {
		s.options.Logger.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.options.Logger.Debug("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	s.writeJSON(w, status, errorResponse{Error: errorBody{
		Message: err.Error(),
		Type:    errType,
	}})
}

// classifyError maps domain errors to an HTTP status and error type.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, sixlab.ErrUnknownProvider), errors.Is(err, sixlab.ErrUnknownOperation), errors.Is(err, sixlab.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sixlab.ErrRequiredFieldMissing), errors.Is(err, sixlab.ErrValidationFailed), errors.Is(err, sixlab.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, sixlab.ErrProviderDisabled):
		return http.StatusForbidden, "provider_disabled"
	case errors.Is(err, sixlab.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate_limit_exceeded"
	case errors.Is(err, sixlab.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, sixlab.ErrAPIRequestFailed), errors.Is(err, sixlab.ErrTransport):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger assigns a request ID and logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.options.Logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"durationMs", time.Since(start).Milliseconds(),
			"requestId", requestID,
		)
	})
}
