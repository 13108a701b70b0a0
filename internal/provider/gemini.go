// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	genai "google.golang.org/genai"

	"github.com/forgelabs/mcpsmith/internal/config"
)

const geminiDefaultModel = "gemini-2.5-flash"

// GeminiAdapter talks to the Gemini API through the official genai client.
type GeminiAdapter struct {
	cfg   config.ProviderConfig
	guard intervalGuard

	initOnce sync.Once
	client   *genai.Client
	initErr  error
}

// NewGeminiAdapter creates an adapter from the configured credentials. The
// underlying client is created lazily on first use because construction needs
// a context.
func NewGeminiAdapter(cfg config.ProviderConfig) *GeminiAdapter {
	return &GeminiAdapter{
		cfg:   cfg,
		guard: intervalGuard{min: cfg.MinRequestInterval()},
	}
}

// Name implements Adapter.
func (a *GeminiAdapter) Name() string { return "gemini" }

// Profile implements Adapter.
func (a *GeminiAdapter) Profile() ProviderProfile {
	return ProviderProfile{
		Name:               a.Name(),
		SupportedModels:    []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.0-flash"},
		DefaultModel:       a.model(""),
		MinRequestInterval: a.cfg.MinRequestInterval(),
	}
}

func (a *GeminiAdapter) model(requested string) string {
	if requested != "" {
		return requested
	}
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return geminiDefaultModel
}

func (a *GeminiAdapter) ensureClient(ctx context.Context) (*genai.Client, error) {
	a.initOnce.Do(func() {
		a.client, a.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  a.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return a.client, a.initErr
}

// Complete implements Adapter. System messages become the system instruction;
// user and assistant turns fold into the content list with Gemini role names.
func (a *GeminiAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := a.guard.take(); err != nil {
		return nil, err
	}

	client, err := a.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	model := a.model(req.Model)
	messages, err := fitToContext(req.Messages, model)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens != 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, mapTransportErr(ctx, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &UpstreamError{Provider: a.Name(), StatusCode: 0, Body: "empty candidate list"}
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		content.WriteString(part.Text)
	}

	result := &CompletionResult{
		Content:      content.String(),
		Model:        model,
		FinishReason: mapGeminiFinish(string(candidate.FinishReason)),
		Provider:     a.Name(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = &Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

func mapGeminiFinish(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return strings.ToLower(reason)
	}
}

// IsAvailable implements Adapter with a one-token generation probe.
func (a *GeminiAdapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.APIKey == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client, err := a.ensureClient(probeCtx)
	if err != nil {
		log.Debugf("gemini adapter: probe init failed: %v", err)
		return false
	}
	_, err = client.Models.GenerateContent(probeCtx, a.model(""),
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: "ping"}}}},
		&genai.GenerateContentConfig{MaxOutputTokens: 1},
	)
	return err == nil
}
