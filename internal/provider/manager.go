// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/config"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// taskPreferences holds the fixed provider orders per task kind.
var taskPreferences = map[Task][]string{
	TaskAnalysis:     {"anthropic", "openai", "gemini"},
	TaskModification: {"openai", "anthropic", "gemini"},
}

// Manager owns the configured adapters and coordinates completion calls
// across them: retry passes with linear backoff, preferred/fallback ordering,
// per-task selection, and ensemble consensus.
type Manager struct {
	adapters   []Adapter
	byName     map[string]Adapter
	retryDelay time.Duration
}

// NewManager builds a manager from the configured provider credentials.
// Adapters without an API key are not registered.
func NewManager(cfg *config.Config) *Manager {
	var adapters []Adapter
	if cfg.Providers.OpenAI.APIKey != "" {
		adapters = append(adapters, NewOpenAIAdapter(cfg.Providers.OpenAI))
	}
	if cfg.Providers.Anthropic.APIKey != "" {
		adapters = append(adapters, NewAnthropicAdapter(cfg.Providers.Anthropic))
	}
	if cfg.Providers.Gemini.APIKey != "" {
		adapters = append(adapters, NewGeminiAdapter(cfg.Providers.Gemini))
	}
	return NewManagerWithAdapters(adapters)
}

// NewManagerWithAdapters builds a manager over pre-built adapters, keeping
// their order as the configured order.
func NewManagerWithAdapters(adapters []Adapter) *Manager {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Manager{
		adapters:   adapters,
		byName:     byName,
		retryDelay: defaultRetryDelay,
	}
}

// Providers returns the configured adapter names in order.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.adapters))
	for _, a := range m.adapters {
		names = append(names, a.Name())
	}
	return names
}

// orderAdapters arranges adapters preferred first, then the named fallbacks,
// then the remaining configured adapters, without duplicates.
func (m *Manager) orderAdapters(preferred string, fallbacks []string) []Adapter {
	seen := make(map[string]bool, len(m.adapters))
	ordered := make([]Adapter, 0, len(m.adapters))
	add := func(name string) {
		if a, ok := m.byName[name]; ok && !seen[name] {
			seen[name] = true
			ordered = append(ordered, a)
		}
	}
	add(preferred)
	for _, name := range fallbacks {
		add(name)
	}
	for _, a := range m.adapters {
		add(a.Name())
	}
	return ordered
}

// resolveAdapters maps caller-supplied names to adapters in order, without
// duplicates. Any unknown name fails the whole resolution.
func (m *Manager) resolveAdapters(names []string) ([]Adapter, error) {
	seen := make(map[string]bool, len(names))
	resolved := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, ok := m.byName[name]
		if !ok {
			return nil, &UnknownProviderError{Name: name, Configured: m.Providers()}
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		resolved = append(resolved, a)
	}
	return resolved, nil
}

// GenerateCompletion runs up to MaxRetries passes over the ordered adapters
// and returns the first success, tagged with the producing adapter's name.
// Rate-limited adapters are skipped immediately; other failures advance after
// a warn log. Between passes the delay grows linearly with the pass index.
func (m *Manager) GenerateCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (*CompletionResult, error) {
	if len(m.adapters) == 0 {
		return nil, ErrNoProvidersConfigured
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	ordered := m.orderAdapters(opts.PreferredProvider, opts.FallbackProviders)
	if len(opts.AllowedProviders) > 0 {
		allowed, err := m.resolveAdapters(opts.AllowedProviders)
		if err != nil {
			return nil, err
		}
		permitted := make(map[string]bool, len(allowed))
		for _, a := range allowed {
			permitted[a.Name()] = true
		}
		kept := make([]Adapter, 0, len(allowed))
		for _, a := range ordered {
			if permitted[a.Name()] {
				kept = append(kept, a)
			}
		}
		ordered = kept
	}

	req := CompletionRequest{
		Messages:    messages,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	var lastErr error
	for pass := 0; pass < maxRetries; pass++ {
		if pass > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.retryDelay * time.Duration(pass)):
			}
		}
		for _, adapter := range ordered {
			result, err := adapter.Complete(ctx, req)
			if err == nil {
				result.Provider = adapter.Name()
				return result, nil
			}
			lastErr = err
			if errors.Is(err, ErrRateLimited) {
				log.Debugf("provider %s rate limited, advancing", adapter.Name())
				continue
			}
			log.Warnf("provider %s failed on pass %d: %v", adapter.Name(), pass+1, err)
		}
	}
	return nil, fmt.Errorf("%w after %d passes: %v", ErrAllProvidersExhausted, maxRetries, lastErr)
}

// SelectProviderForTask returns the adapter name to prefer for a task kind.
// The fixed preference orders are filtered to configured adapters; when none
// of the preferred names is configured, the first configured adapter wins.
func (m *Manager) SelectProviderForTask(task Task) (string, error) {
	if len(m.adapters) == 0 {
		return "", ErrNoProvidersConfigured
	}
	for _, name := range taskPreferences[task] {
		if _, ok := m.byName[name]; ok {
			return name, nil
		}
	}
	return m.adapters[0].Name(), nil
}

// AvailabilityReport probes every adapter concurrently.
func (m *Manager) AvailabilityReport(ctx context.Context) []AvailabilityStatus {
	statuses := make([]AvailabilityStatus, len(m.adapters))
	var wg sync.WaitGroup
	for i, adapter := range m.adapters {
		wg.Add(1)
		go func(i int, adapter Adapter) {
			defer wg.Done()
			start := time.Now()
			available := adapter.IsAvailable(ctx)
			statuses[i] = AvailabilityStatus{
				Name:      adapter.Name(),
				Available: available,
				Latency:   time.Since(start),
				Profile:   adapter.Profile(),
			}
		}(i, adapter)
	}
	wg.Wait()
	return statuses
}
