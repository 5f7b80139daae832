// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/provider"
	"github.com/MadsRC/sixlab/internal/transport"
)

func TestAnthropicBackend_CompletionRequest(t *testing.T) {
	cfg := Descriptor().DefaultConfig.Merge(sixlab.ProviderConfig{sixlab.ConfigAPIKey: "sk-ant-test"})

	req, err := Backend{}.CompletionRequest(cfg, provider.Call{
		System:      "You are a tutor.",
		Prompt:      "Explain OSPF areas.",
		Model:       DefaultModel,
		Temperature: 1.5,
		MaxTokens:   512,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.anthropic.com/v1/messages", req.URL)
	assert.Equal(t, "sk-ant-test", req.Headers["x-api-key"])
	assert.Equal(t, AnthropicVersionLatest, req.Headers[AnthropicVersionHeader])

	var body AnthropicRequest
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, DefaultModel, body.Model)
	assert.Equal(t, int64(512), body.MaxTokens)
	assert.Equal(t, "You are a tutor.", body.System)
	require.NotNil(t, body.Temperature)
	assert.Equal(t, 1.0, *body.Temperature)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "Explain OSPF areas.", body.Messages[0].Content)
}

func TestAnthropicBackend_ParseCompletion(t *testing.T) {
	c, err := Backend{}.ParseCompletion([]byte(`{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-haiku-20241022",
		"content": [{"type": "text", "text": "Area 0 "}, {"type": "text", "text": "is the backbone."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 20, "output_tokens": 7}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Area 0 is the backbone.", c.Content)
	assert.Equal(t, "claude-3-5-haiku-20241022", c.Model)
	assert.Equal(t, int64(27), c.Tokens())

	_, err = Backend{}.ParseCompletion([]byte(`{"content": []}`))
	assert.Error(t, err)
}

func TestAnthropicProvider_AnalyzeConfiguration(t *testing.T) {
	var got AnthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))

		_, _ = w.Write([]byte(`{
			"type": "message",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "Missing no shutdown."}],
			"usage": {"input_tokens": 1000, "output_tokens": 500}
		}`))
	}))
	defer server.Close()

	p, err := New(
		provider.WithConfig(sixlab.ProviderConfig{
			sixlab.ConfigAPIKey:      "sk-ant-test",
			sixlab.ConfigAPIEndpoint: server.URL,
		}),
		provider.WithTransport(transport.New(transport.WithHTTPClient(server.Client()))),
	)
	require.NoError(t, err)

	resp, err := p.AnalyzeConfiguration(context.Background(), sixlab.ConfigurationAnalysisRequest{
		DeviceType:    "cisco_ios",
		DeviceName:    "R1",
		Configuration: "interface Gi0/0\n  ip address 10.0.0.1 255.255.255.0",
		Objectives:    "Bring up Gi0/0",
	})
	require.NoError(t, err)
	assert.Equal(t, "Missing no shutdown.", resp.Content)
	assert.Equal(t, int64(1500), resp.TokensUsed)
	// 1000 * 0.0008/1000 + 500 * 0.004/1000
	assert.InDelta(t, 0.0028, resp.CostUSD, 1e-12)

	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "interface Gi0/0\n  ip address 10.0.0.1 255.255.255.0")
}
