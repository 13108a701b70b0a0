// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EnsembleOptions tunes a consensus analysis run.
type EnsembleOptions struct {
	// MinProviders is the number of adapters that must both be selected and
	// succeed. Zero means 2.
	MinProviders int
	// Providers restricts the fan-out to the named adapters when non-empty.
	// A name matching no configured adapter is an error.
	Providers []string
}

// maxEnsembleProviders caps the fan-out width; more adapters add latency and
// cost without improving the consensus much.
const maxEnsembleProviders = 3

// EnsembleAnalysis issues the same analysis request to several adapters
// concurrently and merges their findings into one consensus finding.
// Individual adapter failures are tolerated as long as MinProviders succeed.
// No artificial inter-adapter delay is applied; each adapter still enforces
// its own minimum request interval.
func (m *Manager) EnsembleAnalysis(ctx context.Context, req AnalysisRequest, opts EnsembleOptions) (*ConsensusFinding, error) {
	minProviders := opts.MinProviders
	if minProviders <= 0 {
		minProviders = 2
	}
	selected := m.adapters
	if len(opts.Providers) > 0 {
		var err error
		selected, err = m.resolveAdapters(opts.Providers)
		if err != nil {
			return nil, err
		}
	}
	if len(selected) > maxEnsembleProviders {
		selected = selected[:maxEnsembleProviders]
	}
	// Validated after capping: a minimum above the fan-out width can never
	// be met and must fail here rather than as ErrEnsembleFailed later.
	if len(selected) < minProviders {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientProviders, minProviders, len(selected))
	}

	var (
		mu       sync.Mutex
		findings []AnalysisFinding
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range selected {
		adapter := adapter
		g.Go(func() error {
			finding, err := m.analyzeWith(gctx, adapter, req)
			if err != nil {
				// Tolerated; the success count is checked below.
				log.Warnf("ensemble: provider %s failed: %v", adapter.Name(), err)
				return nil
			}
			mu.Lock()
			findings = append(findings, *finding)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(findings) < minProviders {
		return nil, fmt.Errorf("%w: only %d of %d providers succeeded", ErrEnsembleFailed, len(findings), len(selected))
	}
	consensus := MergeFindings(findings)
	return &consensus, nil
}

// MergeFindings reduces several per-adapter findings into one consensus
// finding. Pure data reduction: same inputs always yield the same output.
//
// Narratives are concatenated with a source prefix. Suggestions and issues
// are de-duplicated on a normalized key (lowercased kind or severity plus the
// first 50 characters of the description). Consensus confidence starts at 0.5
// for two non-identical result sets, earns 0.05 per provider beyond two and
// up to 0.35 scaled by the duplicate-overlap ratio, capped at 0.9.
func MergeFindings(findings []AnalysisFinding) ConsensusFinding {
	var out ConsensusFinding

	var narrative strings.Builder
	for i, f := range findings {
		if i > 0 {
			narrative.WriteString("\n\n")
		}
		narrative.WriteString("[" + f.Provider + "] " + f.Narrative)
		out.Providers = append(out.Providers, f.Provider)
	}
	out.Narrative = narrative.String()

	total := 0
	seenSuggestions := make(map[string]bool)
	seenIssues := make(map[string]bool)
	for _, f := range findings {
		for _, s := range f.Suggestions {
			total++
			key := dedupKey(s.Kind, s.Description)
			if seenSuggestions[key] {
				continue
			}
			seenSuggestions[key] = true
			out.Suggestions = append(out.Suggestions, s)
		}
		for _, i := range f.Issues {
			total++
			key := dedupKey(i.Severity, i.Message)
			if seenIssues[key] {
				continue
			}
			seenIssues[key] = true
			out.Issues = append(out.Issues, i)
		}
	}

	out.Confidence = consensusConfidence(len(findings), total, total-len(out.Suggestions)-len(out.Issues))
	return out
}

// dedupKey normalizes a finding item for cross-adapter comparison.
func dedupKey(kind, description string) string {
	desc := strings.ToLower(strings.TrimSpace(description))
	if len(desc) > 50 {
		desc = desc[:50]
	}
	return strings.ToLower(strings.TrimSpace(kind)) + "|" + desc
}

// consensusConfidence rewards cross-adapter overlap. Always strictly in (0,1).
func consensusConfidence(providers, totalItems, duplicates int) float64 {
	confidence := 0.5
	if providers > 2 {
		confidence += 0.05 * float64(providers-2)
	}
	if totalItems > 0 {
		overlap := float64(duplicates) / float64(totalItems)
		confidence += 0.35 * overlap
	}
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}
