// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("ab"))
	require.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestModelContextLimit(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4o", 128000},
		{"gpt-4o-2024-08-06", 128000}, // prefix match, longest prefix wins
		{"gpt-4", 8192},
		{"claude-3.5-sonnet-20241022", 200000},
		{"totally-unknown", 8192},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ModelContextLimit(tt.model), tt.model)
	}
}

func TestChunkTextSmallInputUntouched(t *testing.T) {
	chunks := ChunkText("short text", 100)
	require.Equal(t, []string{"short text"}, chunks)
}

func TestChunkTextSplitsOnParagraphs(t *testing.T) {
	text := strings.Repeat("x", 200) + "\n\n" + strings.Repeat("y", 200)
	chunks := ChunkText(text, 60)
	require.Len(t, chunks, 2)
	require.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkTextFallsThroughToSpaces(t *testing.T) {
	// One paragraph, no sentence boundaries, many words.
	words := make([]string, 100)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")
	chunks := ChunkText(text, 20)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, EstimateTokens(c), 20)
	}
}

func TestProperty_ChunksRejoinToOriginal(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("paragraph/sentence chunks rejoin losslessly", prop.ForAll(
		func(paras []string, budget int) bool {
			text := strings.Join(paras, "\n\n")
			chunks := ChunkText(text, budget%50+1)
			return strings.Join(chunks, "") == text
		},
		gen.SliceOf(gen.AlphaString()).SuchThat(func(s []string) bool { return len(s) > 0 }),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

func TestFitToContextWithinLimit(t *testing.T) {
	messages := []Message{{Role: RoleUser, Content: "hello"}}
	fitted, err := fitToContext(messages, "gpt-4")
	require.NoError(t, err)
	require.Equal(t, messages, fitted)
}

func TestFitToContextShrinksLargestMessage(t *testing.T) {
	// gpt-4 window is 8192 tokens ~ 32768 chars; build a 60k-char paragraph soup.
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString(strings.Repeat("a", 200))
		b.WriteString("\n\n")
	}
	messages := []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: b.String()},
	}
	fitted, err := fitToContext(messages, "gpt-4")
	require.NoError(t, err)
	require.Less(t, len(fitted[1].Content), len(messages[1].Content))
	require.LessOrEqual(t, estimateMessages(fitted), ModelContextLimit("gpt-4"))
	// Untouched messages survive verbatim.
	require.Equal(t, "be brief", fitted[0].Content)
}

func TestFitToContextIndivisibleContentRejected(t *testing.T) {
	// No paragraph, sentence, or space boundaries anywhere.
	messages := []Message{{Role: RoleUser, Content: strings.Repeat("a", 40000)}}
	_, err := fitToContext(messages, "gpt-4")
	require.ErrorIs(t, err, ErrContextExceeded)
}
