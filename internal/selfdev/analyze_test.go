// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selfdev

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgelabs/mcpsmith/internal/backup"
	"github.com/forgelabs/mcpsmith/internal/config"
	"github.com/forgelabs/mcpsmith/internal/provider"
)

type fakeBackend struct {
	analyze  func(req provider.AnalysisRequest) (*provider.AnalysisFinding, error)
	ensemble func(req provider.AnalysisRequest) (*provider.ConsensusFinding, error)
	propose  func(req provider.ModificationRequest) (*provider.ModificationProposal, error)

	analyzed     []string
	proposed     []string
	ensembleOpts provider.EnsembleOptions
}

func (f *fakeBackend) Providers() []string { return []string{"openai", "anthropic"} }

func (f *fakeBackend) AnalyzeCode(_ context.Context, req provider.AnalysisRequest) (*provider.AnalysisFinding, error) {
	f.analyzed = append(f.analyzed, req.FilePath)
	if f.analyze != nil {
		return f.analyze(req)
	}
	return &provider.AnalysisFinding{Kind: req.Kind, Narrative: "ok", Provider: "stub"}, nil
}

func (f *fakeBackend) EnsembleAnalysis(_ context.Context, req provider.AnalysisRequest, opts provider.EnsembleOptions) (*provider.ConsensusFinding, error) {
	f.analyzed = append(f.analyzed, req.FilePath)
	f.ensembleOpts = opts
	if f.ensemble != nil {
		return f.ensemble(req)
	}
	return &provider.ConsensusFinding{Narrative: "consensus", Confidence: 0.6, Providers: []string{"a", "b"}}, nil
}

func (f *fakeBackend) ProposeModification(_ context.Context, req provider.ModificationRequest) (*provider.ModificationProposal, error) {
	f.proposed = append(f.proposed, req.FilePath)
	if f.propose != nil {
		return f.propose(req)
	}
	return &provider.ModificationProposal{RewrittenContent: req.Content, Confidence: 0.5, Provider: "stub"}, nil
}

func newTestEngine(t *testing.T, backend AIBackend) (*Engine, string) {
	t.Helper()
	cfg, err := config.LoadConfig("/nonexistent/mcpsmith.yaml")
	require.NoError(t, err)
	root := t.TempDir()
	snapshots := backup.NewManager(t.TempDir(), root)
	return NewEngine(cfg, backend, snapshots, root), root
}

func TestAnalyzeSelfRequiresProviders(t *testing.T) {
	backend := &fakeBackend{}
	e, root := newTestEngine(t, backend)
	writeFile(t, root, "internal/a.go", "package a\n")

	_, err := e.AnalyzeSelf(context.Background(), AnalyzeRequest{})
	require.ErrorIs(t, err, provider.ErrNoProvidersConfigured)
	require.Empty(t, backend.analyzed, "no file IO before the provider check")
}

func TestAnalyzeSelfRejectsUnknownProvider(t *testing.T) {
	backend := &fakeBackend{}
	e, root := newTestEngine(t, backend)
	writeFile(t, root, "internal/a.go", "package a\n")

	_, err := e.AnalyzeSelf(context.Background(), AnalyzeRequest{
		ProviderNames: []string{"no-such-provider"},
	})
	var unknown *provider.UnknownProviderError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "no-such-provider", unknown.Name)
	require.Empty(t, backend.analyzed, "nothing analyzed under a bad provider selection")
}

func TestAnalyzeSelfThreadsProviderNames(t *testing.T) {
	var got []string
	backend := &fakeBackend{
		analyze: func(req provider.AnalysisRequest) (*provider.AnalysisFinding, error) {
			got = req.Providers
			return &provider.AnalysisFinding{Narrative: "ok"}, nil
		},
	}
	e, root := newTestEngine(t, backend)
	writeFile(t, root, "internal/a.go", "package a\n")

	_, err := e.AnalyzeSelf(context.Background(), AnalyzeRequest{
		ProviderNames: []string{"anthropic", "openai"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"anthropic", "openai"}, got)

	_, err = e.AnalyzeSelf(context.Background(), AnalyzeRequest{
		ProviderNames: []string{"openai", "anthropic"},
		Ensemble:      true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"openai", "anthropic"}, backend.ensembleOpts.Providers)
}

func TestAnalyzeSelfWalksSourceRoots(t *testing.T) {
	backend := &fakeBackend{
		analyze: func(req provider.AnalysisRequest) (*provider.AnalysisFinding, error) {
			require.Equal(t, "go", req.Language)
			require.NotEmpty(t, req.Content)
			require.Contains(t, req.AppContext, "mcpsmith")
			return &provider.AnalysisFinding{
				Kind:      req.Kind,
				Narrative: "fine",
				Suggestions: []provider.Suggestion{
					{Kind: "refactor", Description: "split", Impact: "high"},
				},
				Issues: []provider.Issue{
					{Severity: "critical", Message: "injection"},
					{Severity: "low", Message: "nit"},
				},
			}, nil
		},
	}
	e, root := newTestEngine(t, backend)
	writeFile(t, root, "internal/a.go", "package a\n")
	writeFile(t, root, "cmd/main.go", "package main\n")

	report, err := e.AnalyzeSelf(context.Background(), AnalyzeRequest{
		ProviderNames: []string{"openai"},
		Kind:          provider.AnalysisSecurity,
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	require.Equal(t, 2, report.Summary.FilesAnalyzed)
	require.Equal(t, 4, report.Summary.TotalIssues)
	require.Equal(t, 2, report.Summary.TotalSuggestions)
	require.Equal(t, 2, report.Summary.CriticalIssues)
	require.Equal(t, 2, report.Summary.HighImpactSuggestions)
}

func TestAnalyzeSelfToleratesPerFileFailures(t *testing.T) {
	backend := &fakeBackend{
		analyze: func(req provider.AnalysisRequest) (*provider.AnalysisFinding, error) {
			if req.FilePath == "internal/bad.go" {
				return nil, errors.New("upstream hiccup")
			}
			return &provider.AnalysisFinding{Narrative: "ok"}, nil
		},
	}
	e, root := newTestEngine(t, backend)
	writeFile(t, root, "internal/bad.go", "package a\n")
	writeFile(t, root, "internal/good.go", "package a\n")

	report, err := e.AnalyzeSelf(context.Background(), AnalyzeRequest{ProviderNames: []string{"openai"}})
	require.NoError(t, err, "per-file failures never abort the run")
	require.Equal(t, 1, report.Summary.FilesAnalyzed)
	require.Equal(t, 1, report.Summary.FilesFailed)
	for _, f := range report.Files {
		if f.Path == "internal/bad.go" {
			require.Contains(t, f.Error, "upstream hiccup")
		}
	}
}

func TestAnalyzeSelfEnsemble(t *testing.T) {
	backend := &fakeBackend{}
	e, root := newTestEngine(t, backend)
	writeFile(t, root, "internal/a.go", "package a\n")

	report, err := e.AnalyzeSelf(context.Background(), AnalyzeRequest{
		ProviderNames: []string{"openai", "anthropic"},
		Ensemble:      true,
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	require.NotNil(t, report.Files[0].Consensus)
	require.Nil(t, report.Files[0].Finding)
}

func TestAnalyzeSelfExplicitTargets(t *testing.T) {
	backend := &fakeBackend{}
	e, root := newTestEngine(t, backend)
	writeFile(t, root, "internal/a.go", "package a\n")
	writeFile(t, root, "internal/b.go", "package a\n")

	report, err := e.AnalyzeSelf(context.Background(), AnalyzeRequest{
		ProviderNames: []string{"openai"},
		TargetFiles:   []string{"internal/b.go"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"internal/b.go"}, backend.analyzed)
	require.Len(t, report.Files, 1)
}
