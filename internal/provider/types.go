// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider unifies heterogeneous AI chat-completion backends behind a
// single Adapter interface and coordinates them: retry and fallback ordering,
// per-task provider selection, and multi-adapter consensus analysis.
package provider

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation. Value type.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is the adapter-level request shape.
type CompletionRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the normalized outcome of one completion call.
type CompletionResult struct {
	Content      string `json:"content"`
	Usage        *Usage `json:"usage,omitempty"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	// Provider names the adapter that produced this result.
	Provider string `json:"provider"`
}

// CompletionOptions steers the manager's cross-adapter completion loop.
type CompletionOptions struct {
	// PreferredProvider is tried first when configured.
	PreferredProvider string
	// FallbackProviders are tried after the preferred one, in order.
	FallbackProviders []string
	// AllowedProviders restricts the run to the named adapters when non-empty.
	// A name matching no configured adapter is an error rather than a skip.
	AllowedProviders []string
	// MaxRetries is the number of full passes over the adapter order. Zero
	// means the default (3).
	MaxRetries  int
	Model       string
	MaxTokens   int
	Temperature float64
}

// ProviderProfile describes one adapter's static capabilities.
type ProviderProfile struct {
	Name               string        `json:"name"`
	SupportedModels    []string      `json:"supported_models"`
	DefaultModel       string        `json:"default_model"`
	MinRequestInterval time.Duration `json:"min_request_interval"`
}

// Task distinguishes the fixed provider preference orders.
type Task string

const (
	TaskAnalysis     Task = "analysis"
	TaskModification Task = "modification"
)

// AnalysisKind selects the critique angle for code analysis.
type AnalysisKind string

const (
	AnalysisQuality     AnalysisKind = "quality"
	AnalysisSecurity    AnalysisKind = "security"
	AnalysisPerformance AnalysisKind = "performance"
	AnalysisGeneral     AnalysisKind = "general"
)

// AnalysisRequest carries one file to critique.
type AnalysisRequest struct {
	FilePath   string
	Language   string
	Content    string
	AppContext string
	Kind       AnalysisKind
	// Providers restricts the run to the named adapters, first name preferred.
	// Empty falls back to the task preference order over all adapters.
	Providers []string
}

// Suggestion is one improvement proposal inside a finding.
type Suggestion struct {
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Impact      string  `json:"impact"`
}

// Issue is one detected problem inside a finding.
type Issue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// AnalysisFinding is one adapter's critique of one file.
type AnalysisFinding struct {
	Kind        AnalysisKind `json:"kind"`
	Narrative   string       `json:"narrative"`
	Suggestions []Suggestion `json:"suggestions"`
	Issues      []Issue      `json:"issues"`
	// Provider names the adapter that produced this finding.
	Provider string `json:"provider"`
}

// ConsensusFinding merges several findings from independent adapters.
type ConsensusFinding struct {
	Narrative   string       `json:"narrative"`
	Suggestions []Suggestion `json:"suggestions"`
	Issues      []Issue      `json:"issues"`
	// Confidence rewards cross-adapter overlap; always strictly inside (0,1).
	Confidence float64 `json:"confidence"`
	// Providers lists the adapters whose findings were merged.
	Providers []string `json:"providers"`
}

// ModificationRequest asks for a rewrite of one file.
type ModificationRequest struct {
	FilePath    string
	Language    string
	Content     string
	Instruction string
	SafetyLevel string
	// Providers restricts the run to the named adapters, first name preferred.
	// Empty falls back to the task preference order over all adapters.
	Providers []string
}

// ChangeSpan describes one region the rewrite touched.
type ChangeSpan struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
}

// Risk flags a hazard the rewrite may introduce.
type Risk struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// ModificationProposal is the structured outcome of a rewrite request.
// It is applied to disk only above the configured confidence threshold and
// never during a dry run.
type ModificationProposal struct {
	RewrittenContent string       `json:"rewritten_content"`
	Rationale        string       `json:"rationale"`
	ChangeSpans      []ChangeSpan `json:"change_spans"`
	Confidence       float64      `json:"confidence"`
	Risks            []Risk       `json:"risks"`
	// Provider names the adapter that produced this proposal.
	Provider string `json:"provider"`
}

// AvailabilityStatus reports one adapter's probe outcome.
type AvailabilityStatus struct {
	Name      string          `json:"name"`
	Available bool            `json:"available"`
	Latency   time.Duration   `json:"latency"`
	Profile   ProviderProfile `json:"profile"`
}
