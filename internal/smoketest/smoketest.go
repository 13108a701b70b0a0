// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package smoketest probes registered tool servers: it dials a stdio session,
// lists the exposed tools, and calls each one with supplied or synthesized
// arguments. Individual tool failures never abort the run.
package smoketest

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/registry"
)

// ToolInfo is the runner's view of one exposed tool.
type ToolInfo struct {
	Name        string
	Description string
	// RawSchema is the tool's JSON input schema, verbatim.
	RawSchema []byte
}

// CallOutcome is the runner's view of one tool call result.
type CallOutcome struct {
	// IsError reports a tool-level failure carried inside a successful
	// protocol exchange.
	IsError bool
	// Text is the concatenated text content of the reply.
	Text string
}

// ToolSession is the narrow protocol seam the runner needs. The production
// implementation wraps an MCP client session over a stdio process transport.
type ToolSession interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallOutcome, error)
	Close() error
}

// Dialer opens a session against a registered server.
type Dialer func(ctx context.Context, def registry.ServerDefinition) (ToolSession, error)

// ServerNotFoundError reports a smoke run against an unknown server.
type ServerNotFoundError struct {
	Name string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("server not registered: %s", e.Name)
}

// ServerDisabledError reports a smoke run against a disabled server.
type ServerDisabledError struct {
	Name string
}

func (e *ServerDisabledError) Error() string {
	return fmt.Sprintf("server is disabled: %s", e.Name)
}

// RunRequest parameterizes one smoke run.
type RunRequest struct {
	ServerName string
	// ToolFilter narrows the probed tools when non-empty.
	ToolFilter []string
	// ArgsOverrides supplies per-tool arguments instead of synthesis.
	ArgsOverrides map[string]map[string]any
	// Timeout bounds each individual tool call.
	Timeout time.Duration
}

// ToolProbe records one tool call's outcome.
type ToolProbe struct {
	ToolName  string        `json:"tool_name"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	ReplyText string        `json:"reply_text,omitempty"`
}

// Report summarizes one smoke run.
type Report struct {
	ServerName   string      `json:"server_name"`
	TotalTools   int         `json:"total_tools"`
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
	Probes       []ToolProbe `json:"probes"`
}

// Runner executes smoke runs against registered servers.
type Runner struct {
	store       registry.Store
	dial        Dialer
	callTimeout time.Duration
}

// NewRunner creates a runner. dial defaults to the MCP stdio dialer.
func NewRunner(store registry.Store, dial Dialer, callTimeout time.Duration) *Runner {
	if dial == nil {
		dial = DialStdio
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Runner{store: store, dial: dial, callTimeout: callTimeout}
}

// Run probes every (filtered) tool of the named server. Each call is timed and
// allowed to fail independently; the session is always closed.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*Report, error) {
	def, ok := r.store.Get(req.ServerName)
	if !ok {
		return nil, &ServerNotFoundError{Name: req.ServerName}
	}
	if !def.Enabled {
		return nil, &ServerDisabledError{Name: req.ServerName}
	}

	session, err := r.dial(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", req.ServerName, err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", req.ServerName, err)
	}
	tools = filterTools(tools, req.ToolFilter)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.callTimeout
	}

	report := &Report{ServerName: req.ServerName, TotalTools: len(tools)}
	for _, tool := range tools {
		args, supplied := req.ArgsOverrides[tool.Name]
		if !supplied {
			args = SynthesizeArgs(tool.RawSchema)
		}
		probe := r.probe(ctx, session, tool.Name, args, timeout)
		if probe.Success {
			report.SuccessCount++
		} else {
			report.FailureCount++
			log.Warnf("smoketest: %s/%s failed: %s", req.ServerName, tool.Name, probe.Error)
		}
		report.Probes = append(report.Probes, probe)
	}
	return report, nil
}

// probe runs one tool call under its own timeout and contains panics.
func (r *Runner) probe(ctx context.Context, session ToolSession, name string, args map[string]any, timeout time.Duration) (probe ToolProbe) {
	probe.ToolName = name
	start := time.Now()
	defer func() {
		probe.Duration = time.Since(start)
		if rec := recover(); rec != nil {
			probe.Success = false
			probe.Error = fmt.Sprintf("panic during call: %v", rec)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome, err := session.CallTool(callCtx, name, args)
	switch {
	case err != nil:
		probe.Error = err.Error()
	case outcome.IsError:
		probe.Error = "tool reported an error: " + outcome.Text
	default:
		probe.Success = true
		probe.ReplyText = outcome.Text
	}
	return probe
}

func filterTools(tools []ToolInfo, filter []string) []ToolInfo {
	if len(filter) == 0 {
		return tools
	}
	wanted := make(map[string]bool, len(filter))
	for _, name := range filter {
		wanted[name] = true
	}
	var out []ToolInfo
	for _, tool := range tools {
		if wanted[tool.Name] {
			out = append(out, tool)
		}
	}
	return out
}
