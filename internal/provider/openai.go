// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/forgelabs/mcpsmith/internal/config"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o"
)

// OpenAIAdapter talks to the OpenAI chat-completions API (or any compatible
// gateway via base-url override).
type OpenAIAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
	guard  intervalGuard
}

// NewOpenAIAdapter creates an adapter from the configured credentials.
func NewOpenAIAdapter(cfg config.ProviderConfig) *OpenAIAdapter {
	return &OpenAIAdapter{
		cfg:    cfg,
		client: &http.Client{},
		guard:  intervalGuard{min: cfg.MinRequestInterval()},
	}
}

// Name implements Adapter.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Profile implements Adapter.
func (a *OpenAIAdapter) Profile() ProviderProfile {
	return ProviderProfile{
		Name:               a.Name(),
		SupportedModels:    []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-5"},
		DefaultModel:       a.model(""),
		MinRequestInterval: a.cfg.MinRequestInterval(),
	}
}

func (a *OpenAIAdapter) model(requested string) string {
	if requested != "" {
		return requested
	}
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return openAIDefaultModel
}

func (a *OpenAIAdapter) baseURL() string {
	if a.cfg.BaseURL != "" {
		return strings.TrimSuffix(a.cfg.BaseURL, "/")
	}
	return openAIDefaultBaseURL
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete implements Adapter.
func (a *OpenAIAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := a.guard.take(); err != nil {
		return nil, err
	}

	model := a.model(req.Model)
	messages, err := fitToContext(req.Messages, model)
	if err != nil {
		return nil, err
	}

	payload := openAIChatRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL()+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportErr(ctx, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("openai adapter: close response body error: %v", errClose)
		}
	}()

	raw, err := readBody(resp)
	if err != nil {
		return nil, mapTransportErr(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Provider: a.Name(), StatusCode: resp.StatusCode, Body: string(raw)}
	}

	content := gjson.GetBytes(raw, "choices.0.message.content").String()
	result := &CompletionResult{
		Content:      content,
		Model:        gjson.GetBytes(raw, "model").String(),
		FinishReason: gjson.GetBytes(raw, "choices.0.finish_reason").String(),
		Provider:     a.Name(),
	}
	if result.Model == "" {
		result.Model = model
	}
	if usage := gjson.GetBytes(raw, "usage"); usage.Exists() {
		result.Usage = &Usage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		}
	} else {
		// Compatible gateways sometimes omit usage; back-fill with tiktoken.
		prompt := 0
		for _, m := range messages {
			prompt += CountTokens(model, m.Content)
		}
		completion := CountTokens(model, content)
		result.Usage = &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	}
	return result, nil
}

// IsAvailable implements Adapter with a models-list probe.
func (a *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.APIKey == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, a.baseURL()+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
