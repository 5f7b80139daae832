// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package sixlab

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound should be returned when a requested resource cannot be found
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntry should be returned when a resource would violate unique constraints
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrRequiredFieldMissing is returned when a required configuration field is absent or empty
	ErrRequiredFieldMissing = errors.New("required field missing")

	// ErrValidationFailed is returned when a configuration value violates one of its validation rules
	ErrValidationFailed = errors.New("validation failed")

	// ErrRateLimitExceeded is returned when a provider has used up its request ceiling for a window
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrTransport is returned when the request to an AI backend could not be completed
	ErrTransport = errors.New("transport error")

	// ErrTimeout is returned when the request to an AI backend did not finish in time.
	// Errors matching ErrTimeout also match ErrTransport.
	ErrTimeout = errors.New("transport timeout")

	// ErrAPIRequestFailed is returned when an AI backend answers with a non-2xx status
	ErrAPIRequestFailed = errors.New("api request failed")

	// ErrInvalidArgument is returned for arguments outside their domain, e.g. negative token counts
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBudgetExceeded marks the advisory monthly budget signal. It never fails a call.
	ErrBudgetExceeded = errors.New("monthly budget exceeded")

	// ErrUnknownProvider is returned when no provider is registered for an identifier
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnknownOperation is returned when an operation name is not one of the supported operations
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrProviderDisabled is returned when an operation is invoked on a provider whose config disables it
	ErrProviderDisabled = errors.New("provider disabled")
)

// FieldError describes a configuration field that failed validation.
type FieldError struct {
	Field string
	Rule  string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Field)
	}
	return fmt.Sprintf("%v: %s (rule %q)", e.Err, e.Field, e.Rule)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// RateLimitError names the provider, ceiling and window that rejected a request.
type RateLimitError struct {
	Provider string
	Limit    int64
	Window   RateWindow
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for provider %s: %d requests per %s", e.Provider, e.Limit, e.Window)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// APIError is a non-2xx answer from an AI backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPIRequestFailed
}

// TransportError wraps a network level failure. Timeout is set when the
// request deadline expired.
type TransportError struct {
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport timeout: %v", e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	if target == ErrTransport {
		return true
	}
	return e.Timeout && target == ErrTimeout
}
