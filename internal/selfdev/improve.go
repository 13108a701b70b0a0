// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selfdev

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/fsutil"
	"github.com/forgelabs/mcpsmith/internal/provider"
)

// ImprovementKind selects the canned rewrite instruction.
type ImprovementKind string

const (
	ImproveRedundancy    ImprovementKind = "redundancy"
	ImproveHardening     ImprovementKind = "hardening"
	ImprovePerformance   ImprovementKind = "performance"
	ImproveSecurity      ImprovementKind = "security"
	ImproveComprehensive ImprovementKind = "comprehensive"
)

// SafetyLevel modulates how invasive a rewrite may be.
const (
	SafetyConservative = "conservative"
	SafetyAggressive   = "aggressive"
)

var improvementInstructions = map[ImprovementKind]string{
	ImproveRedundancy:    "Remove duplicated and dead code. Collapse copy-pasted logic into shared helpers.",
	ImproveHardening:     "Harden functions: validate inputs, handle every error path, avoid nil dereferences and unchecked type assertions.",
	ImprovePerformance:   "Improve performance: avoid repeated allocations, buffer IO, hoist invariant work out of loops.",
	ImproveSecurity:      "Fix security weaknesses: no hardcoded credentials, no shell injection, no weak file permissions, no disabled TLS verification.",
	ImproveComprehensive: "Improve the file comprehensively: correctness, clarity, error handling, and performance.",
}

// ImproveRequest parameterizes one self-modification run.
type ImproveRequest struct {
	// ProviderNames must name at least one configured provider; the named
	// adapters drive the run, first name preferred.
	ProviderNames []string
	Kind          ImprovementKind
	// TargetFiles restricts the run to an explicit list.
	TargetFiles []string
	SafetyLevel string
	// DryRun proposes rewrites without snapshotting or writing anything.
	DryRun bool
}

// FileImprovement records one file's outcome.
type FileImprovement struct {
	Path     string                         `json:"path"`
	Applied  bool                           `json:"applied"`
	Proposal *provider.ModificationProposal `json:"proposal,omitempty"`
	Error    string                         `json:"error,omitempty"`
}

// ImproveReport is the outcome of one self-modification run.
type ImproveReport struct {
	Kind         ImprovementKind   `json:"kind"`
	DryRun       bool              `json:"dry_run"`
	SnapshotID   string            `json:"snapshot_id,omitempty"`
	AppliedCount int               `json:"applied_count"`
	Files        []FileImprovement `json:"files"`
}

// ImproveCodebase proposes and conditionally applies rewrites to the hub's own
// source files. Targets are confined to the configured safe subtrees and
// capped per run. Outside dry runs every candidate is snapshotted before any
// write; a rewrite lands only when its confidence clears the apply threshold.
func (e *Engine) ImproveCodebase(ctx context.Context, req ImproveRequest) (*ImproveReport, error) {
	if err := e.checkProviders(req.ProviderNames); err != nil {
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = ImproveComprehensive
	}
	instruction, ok := improvementInstructions[kind]
	if !ok {
		return nil, fmt.Errorf("unknown improvement kind %q", kind)
	}
	safety := req.SafetyLevel
	if safety == "" {
		safety = SafetyConservative
	}
	if safety == SafetyConservative {
		instruction += " Make behavior-preserving minimal edits only."
	} else {
		instruction += " Restructuring is permitted when it clearly improves the file."
	}

	safeRoots := e.cfg.Improve.SafeRoots
	files, err := resolveFiles(e.projectRoot, safeRoots, req.TargetFiles, e.cfg.Improve.MaxFilesPerRun)
	if err != nil {
		return nil, err
	}
	var candidates []string
	for _, rel := range files {
		if underRoots(rel, safeRoots) {
			candidates = append(candidates, rel)
		}
	}
	if len(candidates) > e.cfg.Improve.MaxFilesPerRun {
		candidates = candidates[:e.cfg.Improve.MaxFilesPerRun]
	}

	report := &ImproveReport{Kind: kind, DryRun: req.DryRun}
	if len(candidates) == 0 {
		return report, nil
	}

	if !req.DryRun {
		snap, err := e.snapshots.CreateSnapshot(ctx, candidates, "pre-improve "+string(kind))
		if err != nil {
			return nil, fmt.Errorf("pre-modification snapshot: %w", err)
		}
		report.SnapshotID = snap.ID
	}

	threshold := e.cfg.Improve.ApplyThreshold
	for _, rel := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := FileImprovement{Path: rel}
		content, readErr := os.ReadFile(filepath.Join(e.projectRoot, rel))
		if readErr != nil {
			entry.Error = readErr.Error()
			report.Files = append(report.Files, entry)
			continue
		}

		proposal, err := e.backend.ProposeModification(ctx, provider.ModificationRequest{
			FilePath:    rel,
			Language:    languageFor(rel),
			Content:     string(content),
			Instruction: instruction,
			SafetyLevel: safety,
			Providers:   req.ProviderNames,
		})
		if err != nil {
			entry.Error = err.Error()
			log.Warnf("selfdev: proposal for %s failed: %v", rel, err)
			report.Files = append(report.Files, entry)
			continue
		}
		entry.Proposal = proposal

		if !req.DryRun && proposal.Confidence > threshold {
			writeErr := fsutil.SecureWrite(filepath.Join(e.projectRoot, rel),
				[]byte(proposal.RewrittenContent), &fsutil.SecureWriteOptions{Permissions: 0o644})
			if writeErr != nil {
				entry.Error = writeErr.Error()
			} else {
				entry.Applied = true
				report.AppliedCount++
				log.Infof("selfdev: applied rewrite of %s (confidence %.2f, provider %s)",
					rel, proposal.Confidence, proposal.Provider)
			}
		}
		report.Files = append(report.Files, entry)
	}
	return report, nil
}
