// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/tidwall/gjson"
)

const analysisReplySchema = `{
  "narrative": "one-paragraph overall assessment",
  "suggestions": [{"kind": "refactor|style|test|doc", "description": "...", "confidence": 0.0, "impact": "low|medium|high"}],
  "issues": [{"severity": "low|medium|high|critical", "message": "...", "location": "file:line (optional)"}]
}`

const modificationReplySchema = `{
  "rewritten_content": "the complete rewritten file",
  "rationale": "why these changes",
  "confidence": 0.0,
  "change_spans": [{"kind": "edit|insert|delete", "description": "...", "start_line": 0, "end_line": 0}],
  "risks": [{"kind": "behavior|compat|security", "description": "...", "severity": "low|medium|high"}]
}`

// AnalyzeCode asks a single provider to critique one file and parses the
// structured reply. The request's provider names, when given, restrict the run
// to exactly those adapters; otherwise the task preference order applies with
// fallback across the rest. A reply without parseable JSON degrades to a
// narrative-only finding.
func (m *Manager) AnalyzeCode(ctx context.Context, req AnalysisRequest) (*AnalysisFinding, error) {
	opts, err := m.completionOptionsFor(TaskAnalysis, req.Providers)
	if err != nil {
		return nil, err
	}
	opts.Temperature = 0.2
	result, err := m.GenerateCompletion(ctx, analysisMessages(req), opts)
	if err != nil {
		return nil, err
	}
	finding := parseAnalysisReply(result.Content, req.Kind)
	finding.Provider = result.Provider
	return finding, nil
}

// analyzeWith runs one analysis request against one specific adapter.
// Used by the ensemble fan-out, which must not fall back between adapters.
func (m *Manager) analyzeWith(ctx context.Context, adapter Adapter, req AnalysisRequest) (*AnalysisFinding, error) {
	result, err := adapter.Complete(ctx, CompletionRequest{
		Messages:    analysisMessages(req),
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	finding := parseAnalysisReply(result.Content, req.Kind)
	finding.Provider = adapter.Name()
	return finding, nil
}

// ProposeModification asks a single provider to rewrite one file, restricted
// to the request's provider names when given. Unlike analysis, a reply without
// parseable JSON is an error: applying an unstructured rewrite would be unsafe.
func (m *Manager) ProposeModification(ctx context.Context, req ModificationRequest) (*ModificationProposal, error) {
	opts, err := m.completionOptionsFor(TaskModification, req.Providers)
	if err != nil {
		return nil, err
	}
	opts.Temperature = 0.1
	result, err := m.GenerateCompletion(ctx, modificationMessages(req), opts)
	if err != nil {
		return nil, err
	}
	proposal, err := parseModificationReply(result.Content)
	if err != nil {
		return nil, err
	}
	proposal.Provider = result.Provider
	if len(proposal.ChangeSpans) == 0 {
		proposal.ChangeSpans = deriveChangeSpans(req.Content, proposal.RewrittenContent)
	}
	return proposal, nil
}

// completionOptionsFor builds the manager options for one single-provider
// call: caller-named adapters win over the task preference order, with the
// first name preferred and the rest as fallbacks.
func (m *Manager) completionOptionsFor(task Task, names []string) (CompletionOptions, error) {
	if len(names) > 0 {
		if _, err := m.resolveAdapters(names); err != nil {
			return CompletionOptions{}, err
		}
		return CompletionOptions{
			PreferredProvider: names[0],
			FallbackProviders: names[1:],
			AllowedProviders:  names,
		}, nil
	}
	preferred, err := m.SelectProviderForTask(task)
	if err != nil {
		return CompletionOptions{}, err
	}
	return CompletionOptions{PreferredProvider: preferred}, nil
}

func analysisMessages(req AnalysisRequest) []Message {
	system := fmt.Sprintf(
		"You are a senior code reviewer for this application: %s\n"+
			"Analyze the given %s file for %s concerns.\n"+
			"Reply with a single JSON object matching this schema and nothing else:\n%s",
		req.AppContext, req.Language, req.Kind, analysisReplySchema)
	user := fmt.Sprintf("File: %s\n\n%s", req.FilePath, req.Content)
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

func modificationMessages(req ModificationRequest) []Message {
	system := fmt.Sprintf(
		"You are a careful software engineer rewriting one source file.\n"+
			"Instruction: %s\nSafety level: %s\n"+
			"Reply with a single JSON object matching this schema and nothing else:\n%s",
		req.Instruction, req.SafetyLevel, modificationReplySchema)
	user := fmt.Sprintf("File: %s (language: %s)\n\n%s", req.FilePath, req.Language, req.Content)
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

// extractJSONObject pulls the first JSON object out of a model reply,
// tolerating fenced code blocks and surrounding prose.
func extractJSONObject(s string) string {
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		// Skip an optional language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return ""
	}
	return candidate
}

func parseAnalysisReply(content string, kind AnalysisKind) *AnalysisFinding {
	finding := &AnalysisFinding{Kind: kind}
	raw := extractJSONObject(content)
	if raw == "" {
		// Degrade to a narrative-only finding.
		finding.Narrative = strings.TrimSpace(content)
		return finding
	}
	parsed := gjson.Parse(raw)
	finding.Narrative = parsed.Get("narrative").String()
	for _, s := range parsed.Get("suggestions").Array() {
		finding.Suggestions = append(finding.Suggestions, Suggestion{
			Kind:        s.Get("kind").String(),
			Description: s.Get("description").String(),
			Confidence:  clamp01(s.Get("confidence").Float()),
			Impact:      s.Get("impact").String(),
		})
	}
	for _, i := range parsed.Get("issues").Array() {
		finding.Issues = append(finding.Issues, Issue{
			Severity: i.Get("severity").String(),
			Message:  i.Get("message").String(),
			Location: i.Get("location").String(),
		})
	}
	return finding
}

func parseModificationReply(content string) (*ModificationProposal, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, fmt.Errorf("modification reply carries no parseable JSON")
	}
	parsed := gjson.Parse(raw)
	rewritten := parsed.Get("rewritten_content").String()
	if rewritten == "" {
		return nil, fmt.Errorf("modification reply is missing rewritten_content")
	}
	proposal := &ModificationProposal{
		RewrittenContent: rewritten,
		Rationale:        parsed.Get("rationale").String(),
		Confidence:       clamp01(parsed.Get("confidence").Float()),
	}
	for _, c := range parsed.Get("change_spans").Array() {
		proposal.ChangeSpans = append(proposal.ChangeSpans, ChangeSpan{
			Kind:        c.Get("kind").String(),
			Description: c.Get("description").String(),
			StartLine:   int(c.Get("start_line").Int()),
			EndLine:     int(c.Get("end_line").Int()),
		})
	}
	for _, r := range parsed.Get("risks").Array() {
		proposal.Risks = append(proposal.Risks, Risk{
			Kind:        r.Get("kind").String(),
			Description: r.Get("description").String(),
			Severity:    r.Get("severity").String(),
		})
	}
	return proposal, nil
}

// deriveChangeSpans computes line-ranged spans by diffing original against
// rewritten content. Used when the model reply carries no usable spans.
func deriveChangeSpans(original, rewritten string) []ChangeSpan {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, rewritten, true)
	dmp.DiffCleanupSemantic(diffs)

	var spans []ChangeSpan
	line := 1
	for _, d := range diffs {
		lines := strings.Count(d.Text, "\n")
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			line += lines
		case diffmatchpatch.DiffDelete:
			spans = append(spans, ChangeSpan{
				Kind:        "delete",
				Description: summarizeDiffText(d.Text),
				StartLine:   line,
				EndLine:     line + lines,
			})
		case diffmatchpatch.DiffInsert:
			spans = append(spans, ChangeSpan{
				Kind:        "insert",
				Description: summarizeDiffText(d.Text),
				StartLine:   line,
				EndLine:     line + lines,
			})
			line += lines
		}
	}
	return spans
}

func summarizeDiffText(text string) string {
	text = strings.TrimSpace(text)
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[:nl]
	}
	if len(text) > 80 {
		text = text[:80]
	}
	return text
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
