// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package mock is a deterministic provider for tests and local development.
// Requests never leave the process: they are answered by a [Responder].
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/provider"
	"github.com/MadsRC/sixlab/internal/transport"
)

const (
	Type         = "mock"
	DefaultModel = "mock-model"
	endpoint     = "mock://local"
)

type Provider struct {
	*provider.Core
	responder *Responder
}

var _ sixlab.Provider = (*Provider)(nil)

// New creates a mock provider answered by a default [Responder]. Passing
// [provider.WithTransport] replaces the responder.
func New(options ...provider.Option) (*Provider, error) {
	return NewWithResponder(NewResponder(), options...)
}

// NewWithResponder creates a mock provider answered by r.
func NewWithResponder(r *Responder, options ...provider.Option) (*Provider, error) {
	opts := append([]provider.Option{provider.WithTransport(r)}, options...)
	core, err := provider.New(Descriptor(), Backend{}, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{Core: core, responder: r}, nil
}

// Calls returns the number of requests the default responder has answered.
func (p *Provider) Calls() int64 {
	return p.responder.Calls()
}

func Descriptor() provider.Descriptor {
	fields := []sixlab.ConfigField{
		{
			Name:       sixlab.ConfigModel,
			Type:       sixlab.FieldTypeText,
			Label:      "Model",
			Validation: "required",
			Default:    DefaultModel,
		},
	}
	fields = append(fields, provider.CommonConfigFields()...)

	cfg := provider.CommonDefaultConfig()
	cfg[sixlab.ConfigModel] = DefaultModel
	cfg[sixlab.ConfigInputTokenRate] = 0.001
	cfg[sixlab.ConfigOutputTokenRate] = 0.002

	return provider.Descriptor{
		Type:          Type,
		DisplayName:   "Mock",
		Description:   "Deterministic offline provider",
		DefaultConfig: cfg,
		ConfigFields:  fields,
		Prompts:       provider.DefaultPrompts(),
	}
}

type wireRequest struct {
	Operation sixlab.Operation `json:"operation"`
	Model     string           `json:"model"`
	System    string           `json:"system,omitempty"`
	Prompt    string           `json:"prompt"`
}

type wireResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

type Backend struct{}

func (Backend) CompletionRequest(_ sixlab.ProviderConfig, call provider.Call) (transport.Request, error) {
	body, err := json.Marshal(wireRequest{
		Operation: call.Operation,
		Model:     call.Model,
		System:    call.System,
		Prompt:    call.Prompt,
	})
	if err != nil {
		return transport.Request{}, err
	}
	return transport.Request{URL: endpoint + "/complete", Method: http.MethodPost, Body: body}, nil
}

func (Backend) ParseCompletion(body []byte) (provider.Completion, error) {
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Completion{}, err
	}
	return provider.Completion{
		Content:      resp.Content,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// Responder is an in-memory [transport.Transport] that answers mock requests.
type Responder struct {
	latency    time.Duration
	content    func(op sixlab.Operation, prompt string) string
	statusCode int
	errBody    string
	err        error
	usage      *[2]int64
	calls      atomic.Int64
}

var _ transport.Transport = (*Responder)(nil)

type ResponderOption func(*Responder)

// WithLatency delays every answer by d, or until the request deadline.
func WithLatency(d time.Duration) ResponderOption {
	return func(r *Responder) { r.latency = d }
}

// WithContent makes every answer return content.
func WithContent(content string) ResponderOption {
	return func(r *Responder) {
		r.content = func(sixlab.Operation, string) string { return content }
	}
}

// WithContentFunc computes the answer from the operation and prompt.
func WithContentFunc(fn func(op sixlab.Operation, prompt string) string) ResponderOption {
	return func(r *Responder) { r.content = fn }
}

// WithUsage fixes the reported token counts.
func WithUsage(inputTokens, outputTokens int64) ResponderOption {
	return func(r *Responder) { r.usage = &[2]int64{inputTokens, outputTokens} }
}

// WithStatus makes every answer a non-2xx response with body.
func WithStatus(code int, body string) ResponderOption {
	return func(r *Responder) {
		r.statusCode = code
		r.errBody = body
	}
}

// WithError makes every request fail at the transport level.
func WithError(err error) ResponderOption {
	return func(r *Responder) { r.err = err }
}

func NewResponder(opts ...ResponderOption) *Responder {
	r := &Responder{
		content: func(op sixlab.Operation, _ string) string {
			return fmt.Sprintf("Mock %s response.", op)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Responder) Calls() int64 {
	return r.calls.Load()
}

func (r *Responder) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	r.calls.Add(1)
	start := time.Now()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if r.latency > 0 {
		select {
		case <-time.After(r.latency):
		case <-ctx.Done():
			return transport.Response{Elapsed: time.Since(start)}, &sixlab.TransportError{
				Timeout: ctx.Err() == context.DeadlineExceeded,
				Err:     ctx.Err(),
			}
		}
	}

	if r.err != nil {
		return transport.Response{Elapsed: time.Since(start)}, r.err
	}
	if r.statusCode != 0 {
		return transport.Response{StatusCode: r.statusCode, Body: []byte(r.errBody), Elapsed: time.Since(start)}, nil
	}

	var in wireRequest
	if err := json.Unmarshal(req.Body, &in); err != nil {
		return transport.Response{StatusCode: http.StatusBadRequest, Body: []byte(err.Error()), Elapsed: time.Since(start)}, nil
	}

	content := r.content(in.Operation, in.Prompt)
	inputTokens, outputTokens := estimateTokens(in.System+in.Prompt), estimateTokens(content)
	if r.usage != nil {
		inputTokens, outputTokens = r.usage[0], r.usage[1]
	}

	body, err := json.Marshal(wireResponse{
		Content:      content,
		Model:        in.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	})
	if err != nil {
		return transport.Response{}, &sixlab.TransportError{Err: err}
	}

	return transport.Response{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Elapsed:    time.Since(start),
	}, nil
}

// estimateTokens uses the common four characters per token heuristic.
func estimateTokens(s string) int64 {
	return int64((len(s) + 3) / 4)
}
