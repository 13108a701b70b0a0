// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimited is returned when an adapter is called before its minimum
	// request interval has elapsed. The manager advances to the next adapter
	// immediately on this error.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrTimeout is returned when an upstream call exceeded its deadline and
	// was aborted.
	ErrTimeout = errors.New("provider request timed out")

	// ErrContextExceeded is returned when a request cannot be made to fit the
	// model's context window even after chunking.
	ErrContextExceeded = errors.New("request exceeds model context window")

	// ErrAllProvidersExhausted is returned after every adapter failed on every
	// retry pass.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrNoProvidersConfigured is returned when an operation requires at least
	// one configured adapter and none exist.
	ErrNoProvidersConfigured = errors.New("no providers configured")

	// ErrInsufficientProviders is returned when ensemble analysis is requested
	// with fewer configured adapters than the minimum.
	ErrInsufficientProviders = errors.New("insufficient providers for ensemble")

	// ErrEnsembleFailed is returned when too few adapters succeeded to form a
	// consensus.
	ErrEnsembleFailed = errors.New("ensemble analysis failed")
)

// UnknownProviderError reports a caller-supplied provider name that matches
// no configured adapter.
type UnknownProviderError struct {
	Name       string
	Configured []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q (configured: %s)", e.Name, strings.Join(e.Configured, ", "))
}

// UpstreamError wraps a non-2xx response from a backend.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s upstream error: status %d: %s", e.Provider, e.StatusCode, body)
}
