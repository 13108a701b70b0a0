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
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultModel   = "claude-3.5-sonnet"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 4096
)

// AnthropicAdapter talks to the Anthropic messages API.
type AnthropicAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
	guard  intervalGuard
}

// NewAnthropicAdapter creates an adapter from the configured credentials.
func NewAnthropicAdapter(cfg config.ProviderConfig) *AnthropicAdapter {
	return &AnthropicAdapter{
		cfg:    cfg,
		client: &http.Client{},
		guard:  intervalGuard{min: cfg.MinRequestInterval()},
	}
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Profile implements Adapter.
func (a *AnthropicAdapter) Profile() ProviderProfile {
	return ProviderProfile{
		Name:               a.Name(),
		SupportedModels:    []string{"claude-3.5-sonnet", "claude-3.5-haiku", "claude-sonnet-4", "claude-opus-4"},
		DefaultModel:       a.model(""),
		MinRequestInterval: a.cfg.MinRequestInterval(),
	}
}

func (a *AnthropicAdapter) model(requested string) string {
	if requested != "" {
		return requested
	}
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return anthropicDefaultModel
}

func (a *AnthropicAdapter) baseURL() string {
	if a.cfg.BaseURL != "" {
		return strings.TrimSuffix(a.cfg.BaseURL, "/")
	}
	return anthropicDefaultBaseURL
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete implements Adapter. System messages are lifted into the dedicated
// system field; remaining turns map directly.
func (a *AnthropicAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := a.guard.take(); err != nil {
		return nil, err
	}

	model := a.model(req.Model)
	messages, err := fitToContext(req.Messages, model)
	if err != nil {
		return nil, err
	}

	payload := anthropicRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if payload.MaxTokens == 0 {
		payload.MaxTokens = anthropicMaxTokens
	}
	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		payload.Messages = append(payload.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	payload.System = strings.Join(system, "\n\n")

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL()+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportErr(ctx, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("anthropic adapter: close response body error: %v", errClose)
		}
	}()

	raw, err := readBody(resp)
	if err != nil {
		return nil, mapTransportErr(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Provider: a.Name(), StatusCode: resp.StatusCode, Body: string(raw)}
	}

	// Concatenate all text blocks of the reply.
	var content strings.Builder
	for _, block := range gjson.GetBytes(raw, "content").Array() {
		if block.Get("type").String() == "text" {
			content.WriteString(block.Get("text").String())
		}
	}

	result := &CompletionResult{
		Content:      content.String(),
		Model:        gjson.GetBytes(raw, "model").String(),
		FinishReason: mapStopReason(gjson.GetBytes(raw, "stop_reason").String()),
		Provider:     a.Name(),
	}
	if result.Model == "" {
		result.Model = model
	}
	if usage := gjson.GetBytes(raw, "usage"); usage.Exists() {
		in := int(usage.Get("input_tokens").Int())
		out := int(usage.Get("output_tokens").Int())
		result.Usage = &Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
	}
	return result, nil
}

// mapStopReason normalizes Anthropic stop reasons onto the OpenAI-style values
// the rest of the hub expects.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

// IsAvailable implements Adapter with a models-list probe.
func (a *AnthropicAdapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.APIKey == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, a.baseURL()+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
