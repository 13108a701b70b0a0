// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selfdev

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/provider"
)

// AnalyzeRequest parameterizes one self-analysis run.
type AnalyzeRequest struct {
	// ProviderNames must name at least one configured provider; the named
	// adapters drive the run, first name preferred.
	ProviderNames []string
	Kind          provider.AnalysisKind
	// TargetFiles analyzes an explicit list instead of walking the source roots.
	TargetFiles []string
	// Ensemble requests multi-provider consensus per file.
	Ensemble bool
}

// FileAnalysis records one file's outcome. Exactly one of Finding, Consensus,
// or Error is populated.
type FileAnalysis struct {
	Path      string                     `json:"path"`
	Finding   *provider.AnalysisFinding  `json:"finding,omitempty"`
	Consensus *provider.ConsensusFinding `json:"consensus,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// AnalyzeSummary aggregates a run's findings.
type AnalyzeSummary struct {
	FilesAnalyzed         int `json:"files_analyzed"`
	FilesFailed           int `json:"files_failed"`
	TotalIssues           int `json:"total_issues"`
	TotalSuggestions      int `json:"total_suggestions"`
	CriticalIssues        int `json:"critical_issues"`
	HighImpactSuggestions int `json:"high_impact_suggestions"`
}

// AnalyzeReport is the outcome of one self-analysis run.
type AnalyzeReport struct {
	Kind    provider.AnalysisKind `json:"kind"`
	Files   []FileAnalysis        `json:"files"`
	Summary AnalyzeSummary        `json:"summary"`
}

// AnalyzeSelf critiques the hub's own source files. Provider configuration is
// checked before any file IO. Per-file failures are recorded and never abort
// the run.
func (e *Engine) AnalyzeSelf(ctx context.Context, req AnalyzeRequest) (*AnalyzeReport, error) {
	if err := e.checkProviders(req.ProviderNames); err != nil {
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = provider.AnalysisGeneral
	}

	files, err := resolveFiles(e.projectRoot, e.cfg.SourceRoots, req.TargetFiles, 0)
	if err != nil {
		return nil, err
	}

	report := &AnalyzeReport{Kind: kind}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := FileAnalysis{Path: rel}
		content, readErr := os.ReadFile(filepath.Join(e.projectRoot, rel))
		if readErr != nil {
			entry.Error = readErr.Error()
			report.Files = append(report.Files, entry)
			continue
		}

		analysisReq := provider.AnalysisRequest{
			FilePath:   rel,
			Language:   languageFor(rel),
			Content:    string(content),
			AppContext: appContext,
			Kind:       kind,
			Providers:  req.ProviderNames,
		}
		if req.Ensemble {
			consensus, err := e.backend.EnsembleAnalysis(ctx, analysisReq, provider.EnsembleOptions{Providers: req.ProviderNames})
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Consensus = consensus
			}
		} else {
			finding, err := e.backend.AnalyzeCode(ctx, analysisReq)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Finding = finding
			}
		}
		if entry.Error != "" {
			log.Warnf("selfdev: analysis of %s failed: %s", rel, entry.Error)
		}
		report.Files = append(report.Files, entry)
	}

	report.Summary = summarize(report.Files)
	return report, nil
}

func summarize(files []FileAnalysis) AnalyzeSummary {
	var s AnalyzeSummary
	count := func(suggestions []provider.Suggestion, issues []provider.Issue) {
		s.TotalSuggestions += len(suggestions)
		s.TotalIssues += len(issues)
		for _, sg := range suggestions {
			if strings.EqualFold(sg.Impact, "high") {
				s.HighImpactSuggestions++
			}
		}
		for _, is := range issues {
			if strings.EqualFold(is.Severity, "critical") {
				s.CriticalIssues++
			}
		}
	}
	for _, f := range files {
		switch {
		case f.Error != "":
			s.FilesFailed++
		case f.Finding != nil:
			s.FilesAnalyzed++
			count(f.Finding.Suggestions, f.Finding.Issues)
		case f.Consensus != nil:
			s.FilesAnalyzed++
			count(f.Consensus.Suggestions, f.Consensus.Issues)
		}
	}
	return s
}
