// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Adapter normalizes one third-party chat-completion API. The manager depends
// only on this interface.
type Adapter interface {
	// Complete performs one completion call. Implementations enforce their
	// model context limit and their own minimum request interval.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	// IsAvailable issues a minimal probe. It returns false on any failure and
	// never panics.
	IsAvailable(ctx context.Context) bool
	// Name returns the adapter's registry key (e.g. "openai").
	Name() string
	// Profile returns the adapter's static capability profile.
	Profile() ProviderProfile
}

const probeTimeout = 5 * time.Second

// intervalGuard enforces a minimum spacing between calls to one backend.
// It uses the monotonic clock carried by time.Time.
type intervalGuard struct {
	mu   sync.Mutex
	min  time.Duration
	last time.Time
}

// take reserves a call slot or fails with ErrRateLimited when the previous
// call was too recent.
func (g *intervalGuard) take() error {
	if g.min <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	if !g.last.IsZero() && now.Sub(g.last) < g.min {
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, g.min-now.Sub(g.last))
	}
	g.last = now
	return nil
}

// readBody drains a response body, transparently decoding gzip and brotli
// content encodings.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

// mapTransportErr converts a context deadline failure into ErrTimeout so the
// manager's taxonomy stays uniform across adapters.
func mapTransportErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
