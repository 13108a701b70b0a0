// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// EstimateTokens approximates the token count of text using a character-count
// heuristic. Most tokenizers average about four characters per token; this is
// cheap enough for pre-flight chunking decisions.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// estimateMessages sums the token estimates of all message contents.
func estimateMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// CountTokens returns an exact token count via tiktoken, falling back to the
// heuristic when the model has no known encoding.
func CountTokens(model, text string) int {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return EstimateTokens(text)
		}
	}
	n, err := codec.Count(text)
	if err != nil {
		return EstimateTokens(text)
	}
	return n
}

// modelContextLimits maps model names/prefixes to their context window sizes
// in tokens.
var modelContextLimits = map[string]int{
	// Claude models
	"claude-3-opus":     200000,
	"claude-3-haiku":    200000,
	"claude-3.5-sonnet": 200000,
	"claude-3.5-haiku":  200000,
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,

	// Gemini models
	"gemini-1.5-pro":   1000000,
	"gemini-1.5-flash": 1000000,
	"gemini-2.0-flash": 1000000,
	"gemini-2.5-flash": 1000000,
	"gemini-2.5-pro":   1000000,

	// GPT models
	"gpt-4":       8192,
	"gpt-4-turbo": 128000,
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	"gpt-5":       200000,

	"default": 8192,
}

// ModelContextLimit returns the context limit for the specified model.
// If the exact model is not found, it attempts to match by prefix and
// returns the default limit (8192) when nothing matches.
func ModelContextLimit(model string) int {
	if limit, ok := modelContextLimits[model]; ok {
		return limit
	}
	best := 0
	limit := 0
	for pattern, l := range modelContextLimits {
		if pattern == "default" {
			continue
		}
		if strings.HasPrefix(model, pattern) && len(pattern) > best {
			best = len(pattern)
			limit = l
		}
	}
	if best > 0 {
		return limit
	}
	return modelContextLimits["default"]
}

// ChunkText splits text into pieces of at most maxTokens estimated tokens,
// preferring paragraph boundaries, then sentence boundaries, then spaces.
// A piece with no splittable boundary is returned whole even when oversized;
// callers detect that case and reject the request.
func ChunkText(text string, maxTokens int) []string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return []string{text}
	}
	var out []string
	for _, para := range splitKeep(text, "\n\n") {
		if EstimateTokens(para) <= maxTokens {
			out = append(out, para)
			continue
		}
		for _, sent := range splitKeep(para, ". ") {
			if EstimateTokens(sent) <= maxTokens {
				out = append(out, sent)
				continue
			}
			out = append(out, splitOnSpaces(sent, maxTokens)...)
		}
	}
	return out
}

// splitKeep splits on sep, re-attaching the separator to each piece so that
// rejoined chunks reproduce the original text.
func splitKeep(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := 0; i < len(parts)-1; i++ {
		parts[i] += sep
	}
	// Drop empty trailing fragment produced by a trailing separator.
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// splitOnSpaces greedily packs words into chunks under the token budget.
// A single word longer than the budget is emitted as its own chunk.
func splitOnSpaces(s string, maxTokens int) []string {
	words := strings.Split(s, " ")
	var out []string
	var cur strings.Builder
	for _, w := range words {
		candidate := w
		if cur.Len() > 0 {
			candidate = cur.String() + " " + w
		}
		if EstimateTokens(candidate) > maxTokens && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			cur.WriteString(w)
			continue
		}
		cur.Reset()
		cur.WriteString(candidate)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// fitToContext shrinks an oversized request to the model's window by chunking
// the largest message and keeping its leading chunks. It returns
// ErrContextExceeded when a single indivisible chunk still exceeds the window.
func fitToContext(messages []Message, model string) ([]Message, error) {
	limit := ModelContextLimit(model)
	if estimateMessages(messages) <= limit {
		return messages, nil
	}

	// Find the largest message; that is where the bulk lives.
	largest := 0
	for i := range messages {
		if len(messages[i].Content) > len(messages[largest].Content) {
			largest = i
		}
	}
	budget := limit
	for i := range messages {
		if i != largest {
			budget -= EstimateTokens(messages[i].Content)
		}
	}
	if budget <= 0 {
		return nil, ErrContextExceeded
	}

	chunks := ChunkText(messages[largest].Content, budget)
	var kept strings.Builder
	used := 0
	for _, chunk := range chunks {
		n := EstimateTokens(chunk)
		if used+n > budget {
			break
		}
		kept.WriteString(chunk)
		used += n
	}
	if kept.Len() == 0 {
		return nil, ErrContextExceeded
	}

	fitted := make([]Message, len(messages))
	copy(fitted, messages)
	fitted[largest].Content = kept.String()
	return fitted, nil
}
