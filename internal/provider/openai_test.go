// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forgelabs/mcpsmith/internal/config"
)

func openAITestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, config.ProviderConfig) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, config.ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL}
}

func TestOpenAICompleteParsesResponse(t *testing.T) {
	var gotBody []byte
	srv, cfg := openAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-2024-08-06",
			"choices": [{"message": {"role": "assistant", "content": "hello back"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	})
	_ = srv

	adapter := NewOpenAIAdapter(cfg)
	result, err := adapter.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello back", result.Content)
	require.Equal(t, "gpt-4o-2024-08-06", result.Model)
	require.Equal(t, "stop", result.FinishReason)
	require.NotNil(t, result.Usage)
	require.Equal(t, 15, result.Usage.TotalTokens)

	require.Equal(t, "gpt-4o", gjson.GetBytes(gotBody, "model").String())
	require.Equal(t, "hello", gjson.GetBytes(gotBody, "messages.0.content").String())
}

func TestOpenAICompleteBackfillsMissingUsage(t *testing.T) {
	_, cfg := openAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "four words of text"}, "finish_reason": "stop"}]}`))
	})

	adapter := NewOpenAIAdapter(cfg)
	result, err := adapter.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "count my tokens"}},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Usage)
	require.Greater(t, result.Usage.PromptTokens, 0)
	require.Greater(t, result.Usage.CompletionTokens, 0)
	require.Equal(t, result.Usage.PromptTokens+result.Usage.CompletionTokens, result.Usage.TotalTokens)
}

func TestOpenAICompleteUpstreamError(t *testing.T) {
	_, cfg := openAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error": "bad gateway"}`))
	})

	adapter := NewOpenAIAdapter(cfg)
	_, err := adapter.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	require.Equal(t, "openai", upstream.Provider)
}

func TestOpenAIMinIntervalGuard(t *testing.T) {
	var hits atomic.Int64
	_, cfg := openAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}]}`))
	})
	cfg.MinRequestIntervalMs = 60_000

	adapter := NewOpenAIAdapter(cfg)
	_, err := adapter.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "first"}},
	})
	require.NoError(t, err)

	_, err = adapter.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "second"}},
	})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, int64(1), hits.Load(), "rate-limited call must not reach the upstream")
}

func TestOpenAICompleteTimeout(t *testing.T) {
	_, cfg := openAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	adapter := NewOpenAIAdapter(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := adapter.Complete(ctx, CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestOpenAIIsAvailable(t *testing.T) {
	_, cfg := openAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	adapter := NewOpenAIAdapter(cfg)
	require.True(t, adapter.IsAvailable(context.Background()))
}

func TestOpenAIIsAvailableFalseOnError(t *testing.T) {
	srv, cfg := openAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	adapter := NewOpenAIAdapter(cfg)
	require.False(t, adapter.IsAvailable(context.Background()))

	// Unreachable endpoint never panics either.
	srv.Close()
	require.False(t, adapter.IsAvailable(context.Background()))

	require.False(t, NewOpenAIAdapter(config.ProviderConfig{}).IsAvailable(context.Background()))
}
