// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package mock

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/provider"
)

func TestMock_DefaultAnswer(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	resp, err := p.ExplainError(context.Background(), sixlab.ErrorExplanationRequest{
		ErrorMessage: "% Incomplete command.",
		Command:      "ip address",
		DeviceType:   "cisco_ios",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mock error_explanation response.", resp.Content)
	assert.Positive(t, resp.TokensUsed)
	assert.Positive(t, resp.CostUSD)
	assert.Equal(t, int64(1), p.Calls())
}

func TestMock_Deterministic(t *testing.T) {
	run := func() sixlab.Response {
		p, err := New()
		require.NoError(t, err)
		resp, err := p.Invoke(context.Background(), sixlab.OperationChat, sixlab.Context{"message": "What is a VLAN?"})
		require.NoError(t, err)
		resp.ResponseTimeMs = 0
		return resp
	}
	assert.Equal(t, run(), run())
}

func TestMock_UsageAndCost(t *testing.T) {
	p, err := NewWithResponder(NewResponder(WithContent("fixed"), WithUsage(1000, 1000)))
	require.NoError(t, err)

	resp, err := p.GenerateHints(context.Background(), sixlab.HintRequest{LabTitle: "NAT", StepNumber: 2, HintLevel: 1})
	require.NoError(t, err)
	assert.Equal(t, "fixed", resp.Content)
	assert.Equal(t, int64(2000), resp.TokensUsed)
	assert.Equal(t, 0.003, resp.CostUSD)
}

func TestMock_ErrorStatus(t *testing.T) {
	p, err := NewWithResponder(NewResponder(WithStatus(http.StatusServiceUnavailable, "overloaded")))
	require.NoError(t, err)

	_, err = p.Invoke(context.Background(), sixlab.OperationChat, sixlab.Context{"message": "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sixlab.ErrAPIRequestFailed)
}

func TestMock_Timeout(t *testing.T) {
	p, err := NewWithResponder(
		NewResponder(WithLatency(time.Second)),
		provider.WithConfig(sixlab.ProviderConfig{sixlab.ConfigTimeout: 1}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Invoke(ctx, sixlab.OperationChat, sixlab.Context{"message": "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sixlab.ErrTimeout)
}

func TestMock_TestConnection(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	res, err := p.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, DefaultModel, res.Model)
}
