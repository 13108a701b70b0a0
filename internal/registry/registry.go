// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry maintains the set of registered tool servers: their launch
// commands, working directories, and enablement. The Store seam lets the hub
// swap the default JSON-file settings document for another backend.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ServerDefinition describes one registered tool server.
type ServerDefinition struct {
	Name         string            `json:"name"`
	Command      string            `json:"command"`
	Args         []string          `json:"args,omitempty"`
	WorkingDir   string            `json:"working_dir"`
	Env          map[string]string `json:"env,omitempty"`
	Enabled      bool              `json:"enabled"`
	Owner        string            `json:"owner,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// Store persists server definitions. Implementations must be safe for
// concurrent use.
type Store interface {
	Upsert(name string, def ServerDefinition) error
	Load() (map[string]ServerDefinition, error)
	Get(name string) (ServerDefinition, bool)
}

// ReloadNotifier is invoked fire-and-forget after a successful registration so
// external collaborators can pick up the new definition.
type ReloadNotifier func(name string)

// DirectoryNotFoundError reports a working directory that does not exist.
type DirectoryNotFoundError struct {
	Path string
}

func (e *DirectoryNotFoundError) Error() string {
	return fmt.Sprintf("working directory not found: %s", e.Path)
}

// RegistrationError reports a registration rejected by validation or the store.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration of %s failed: %v", e.Name, e.Err)
}
func (e *RegistrationError) Unwrap() error { return e.Err }

// RegisterRequest parameterizes one registration.
type RegisterRequest struct {
	Name       string
	Command    string
	Args       []string
	WorkingDir string
	Env        map[string]string
	Enabled    bool
	Owner      string
}

// Registrar validates and persists server registrations.
type Registrar struct {
	store         Store
	workspaceRoot string
	notify        ReloadNotifier
}

// NewRegistrar creates a registrar. notify may be nil.
func NewRegistrar(store Store, workspaceRoot string, notify ReloadNotifier) *Registrar {
	return &Registrar{store: store, workspaceRoot: workspaceRoot, notify: notify}
}

// Register resolves the working directory against the workspace root, verifies
// it exists, and upserts the definition. The reload notifier runs
// fire-and-forget after a successful upsert.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (*ServerDefinition, error) {
	if req.Name == "" {
		return nil, &RegistrationError{Name: req.Name, Err: fmt.Errorf("name is required")}
	}
	if req.Command == "" {
		return nil, &RegistrationError{Name: req.Name, Err: fmt.Errorf("command is required")}
	}

	workingDir, err := r.resolveWorkingDir(req.WorkingDir)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(workingDir)
	if statErr != nil || !info.IsDir() {
		return nil, &DirectoryNotFoundError{Path: workingDir}
	}

	def := ServerDefinition{
		Name:         req.Name,
		Command:      req.Command,
		Args:         req.Args,
		WorkingDir:   workingDir,
		Env:          req.Env,
		Enabled:      req.Enabled,
		Owner:        req.Owner,
		RegisteredAt: time.Now().UTC(),
	}
	if err := r.store.Upsert(req.Name, def); err != nil {
		return nil, &RegistrationError{Name: req.Name, Err: err}
	}

	log.Infof("registry: registered server %s (enabled=%v)", req.Name, req.Enabled)
	if r.notify != nil {
		go r.notify(req.Name)
	}
	return &def, nil
}

// resolveWorkingDir joins relative paths with the workspace root and confines
// the result to the root. Absolute paths are kept as long as they stay inside.
func (r *Registrar) resolveWorkingDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	resolved := dir
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(r.workspaceRoot, resolved)
	}
	resolved = filepath.Clean(resolved)

	root, err := filepath.Abs(r.workspaceRoot)
	if err != nil {
		return "", &RegistrationError{Err: err}
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", &RegistrationError{Err: err}
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &RegistrationError{Err: fmt.Errorf("working directory %s escapes the workspace root", dir)}
	}
	return abs, nil
}
