// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package selfdev implements the hub's supervised self-development loop:
// AI-backed analysis of its own source tree, confidence-gated modification
// with pre-write snapshots, and a post-modification validation pipeline.
package selfdev

import (
	"context"

	"github.com/forgelabs/mcpsmith/internal/backup"
	"github.com/forgelabs/mcpsmith/internal/config"
	"github.com/forgelabs/mcpsmith/internal/provider"
)

// appContext is the fixed application description given to analysis prompts.
const appContext = "mcpsmith: a hub that provisions tool servers (clone, build, register, smoke test) and supervises AI-backed improvement of its own source tree"

// AIBackend is the slice of the provider manager the engine needs.
type AIBackend interface {
	Providers() []string
	AnalyzeCode(ctx context.Context, req provider.AnalysisRequest) (*provider.AnalysisFinding, error)
	EnsembleAnalysis(ctx context.Context, req provider.AnalysisRequest, opts provider.EnsembleOptions) (*provider.ConsensusFinding, error)
	ProposeModification(ctx context.Context, req provider.ModificationRequest) (*provider.ModificationProposal, error)
}

// Engine drives analysis, improvement, and validation over the project tree
// rooted at projectRoot.
type Engine struct {
	cfg         *config.Config
	backend     AIBackend
	snapshots   *backup.Manager
	projectRoot string
}

// NewEngine wires the engine. snapshots may be nil only if ImproveCodebase is
// never called outside dry runs.
func NewEngine(cfg *config.Config, backend AIBackend, snapshots *backup.Manager, projectRoot string) *Engine {
	return &Engine{cfg: cfg, backend: backend, snapshots: snapshots, projectRoot: projectRoot}
}

// checkProviders verifies the caller-selected provider names before any file
// IO. At least one name is required and every name must be configured.
func (e *Engine) checkProviders(names []string) error {
	configured := e.backend.Providers()
	if len(names) == 0 || len(configured) == 0 {
		return provider.ErrNoProvidersConfigured
	}
	known := make(map[string]bool, len(configured))
	for _, name := range configured {
		known[name] = true
	}
	for _, name := range names {
		if !known[name] {
			return &provider.UnknownProviderError{Name: name, Configured: configured}
		}
	}
	return nil
}
