// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package acquire clones or updates source repositories into the workspace
// and builds them: explicit commands when given, otherwise the conventional
// install/build steps of the auto-detected ecosystem.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/subproc"
)

// Ecosystem is a language/toolchain family inferred from marker files.
type Ecosystem string

const (
	EcosystemNode    Ecosystem = "node"
	EcosystemPython  Ecosystem = "python"
	EcosystemUnknown Ecosystem = "unknown"
)

// ProjectHandle describes one acquired and built project. Immutable after
// CloneAndBuild returns.
type ProjectHandle struct {
	RepoURL   string    `json:"repo_url"`
	Name      string    `json:"name"`
	LocalPath string    `json:"local_path"`
	Ecosystem Ecosystem `json:"ecosystem"`
	BuildLog  []string  `json:"build_log"`
}

// CloneRequest parameterizes one acquisition.
type CloneRequest struct {
	RepoURL string
	// Name overrides the directory name derived from the URL.
	Name string
	// Branch checks out a specific branch when given.
	Branch string
	// BuildCommands run verbatim instead of ecosystem detection when given.
	BuildCommands []string
	// Env entries are passed to every build command.
	Env map[string]string
	// PullIfExists updates an already-acquired project instead of skipping it.
	PullIfExists bool
}

// CloneError reports a failed clone or update.
type CloneError struct {
	RepoURL string
	Err     error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone failed for %s: %v", e.RepoURL, e.Err)
}
func (e *CloneError) Unwrap() error { return e.Err }

// BuildError reports a failed build together with the accumulated log.
type BuildError struct {
	Log []string
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("build failed: %v", e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }

// Pipeline acquires and builds projects under one workspace root.
type Pipeline struct {
	workspaceRoot  string
	commandTimeout time.Duration
}

// NewPipeline creates a pipeline rooted at workspaceRoot.
func NewPipeline(workspaceRoot string, commandTimeout time.Duration) *Pipeline {
	return &Pipeline{workspaceRoot: workspaceRoot, commandTimeout: commandTimeout}
}

// buildLogWriter adapts go-git's progress stream into build log lines.
type buildLogWriter struct {
	mu    sync.Mutex
	lines *[]string
}

func (w *buildLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			*w.lines = append(*w.lines, line)
		}
	}
	return len(p), nil
}

// CloneAndBuild acquires the repository and builds it. The returned handle
// carries the full build log even on failure paths that produce one.
func (p *Pipeline) CloneAndBuild(ctx context.Context, req CloneRequest) (*ProjectHandle, error) {
	name := req.Name
	if name == "" {
		name = DeriveProjectName(req.RepoURL)
	}
	handle := &ProjectHandle{
		RepoURL:   req.RepoURL,
		Name:      name,
		LocalPath: filepath.Join(p.workspaceRoot, name),
		Ecosystem: EcosystemUnknown,
	}
	progress := &buildLogWriter{lines: &handle.BuildLog}

	_, statErr := os.Stat(handle.LocalPath)
	exists := statErr == nil

	switch {
	case exists && !req.PullIfExists:
		// Not an error: acquisition is idempotent.
		handle.BuildLog = append(handle.BuildLog, fmt.Sprintf("project %s already exists, skipping clone", name))
		log.Infof("acquire: %s already present, clone skipped", name)
	case exists:
		if err := p.update(ctx, handle, req.Branch, progress); err != nil {
			return handle, &CloneError{RepoURL: req.RepoURL, Err: err}
		}
	default:
		if err := os.MkdirAll(p.workspaceRoot, 0o755); err != nil {
			return handle, &CloneError{RepoURL: req.RepoURL, Err: err}
		}
		opts := &git.CloneOptions{URL: req.RepoURL, Progress: progress}
		if req.Branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
			opts.SingleBranch = true
		}
		if _, err := git.PlainCloneContext(ctx, handle.LocalPath, opts); err != nil {
			return handle, &CloneError{RepoURL: req.RepoURL, Err: err}
		}
		handle.BuildLog = append(handle.BuildLog, fmt.Sprintf("cloned %s into %s", req.RepoURL, handle.LocalPath))
	}

	if err := p.build(ctx, handle, req); err != nil {
		return handle, err
	}
	return handle, nil
}

// update fetches, optionally checks out the requested branch, and pulls.
// Already-up-to-date is not an error.
func (p *Pipeline) update(ctx context.Context, handle *ProjectHandle, branch string, progress *buildLogWriter) error {
	repo, err := git.PlainOpen(handle.LocalPath)
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := repo.FetchContext(ctx, &git.FetchOptions{Progress: progress}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if branch != "" {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
			return fmt.Errorf("checkout %s: %w", branch, err)
		}
	}
	if err := wt.PullContext(ctx, &git.PullOptions{Progress: progress}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull: %w", err)
	}
	handle.BuildLog = append(handle.BuildLog, fmt.Sprintf("updated existing checkout at %s", handle.LocalPath))
	return nil
}

// build runs explicit commands verbatim, or the detected ecosystem's
// conventional install and build steps. An unrecognized ecosystem is noted in
// the log and skipped; it is not a failure.
func (p *Pipeline) build(ctx context.Context, handle *ProjectHandle, req CloneRequest) error {
	commands := req.BuildCommands
	if len(commands) == 0 {
		handle.Ecosystem = DetectEcosystem(handle.LocalPath)
		commands = ConventionalBuildCommands(handle.LocalPath, handle.Ecosystem)
		if handle.Ecosystem == EcosystemUnknown {
			handle.BuildLog = append(handle.BuildLog, "no recognized ecosystem markers, build skipped")
			log.Warnf("acquire: %s has no recognized ecosystem, build skipped", handle.Name)
			return nil
		}
	}

	for _, command := range commands {
		handle.BuildLog = append(handle.BuildLog, "$ "+command)
		result, err := subproc.RunShell(ctx, command, handle.LocalPath, req.Env, p.commandTimeout)
		if result != nil {
			handle.BuildLog = append(handle.BuildLog, result.Lines...)
		}
		if err != nil {
			return &BuildError{Log: handle.BuildLog, Err: err}
		}
	}
	return nil
}

// DeriveProjectName extracts a directory name from a repository URL: the last
// path segment with any .git suffix trimmed.
func DeriveProjectName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	// Handle scp-like syntax (git@host:owner/repo).
	if idx := strings.LastIndexByte(trimmed, ':'); idx >= 0 && !strings.Contains(trimmed[idx:], "/") {
		return trimmed[idx+1:]
	}
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return "project"
	}
	return trimmed
}
