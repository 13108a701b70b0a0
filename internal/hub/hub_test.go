// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgelabs/mcpsmith/internal/acquire"
	"github.com/forgelabs/mcpsmith/internal/backup"
	"github.com/forgelabs/mcpsmith/internal/config"
	"github.com/forgelabs/mcpsmith/internal/provider"
	"github.com/forgelabs/mcpsmith/internal/registry"
	"github.com/forgelabs/mcpsmith/internal/selfdev"
	"github.com/forgelabs/mcpsmith/internal/smoketest"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	base := t.TempDir()
	cfg, err := config.LoadConfig(filepath.Join(base, "absent.yaml"))
	require.NoError(t, err)
	cfg.WorkspaceRoot = filepath.Join(base, "workspace")
	cfg.BackupRoot = filepath.Join(base, "backups")
	cfg.SettingsFile = filepath.Join(base, "settings", "servers.json")
	require.NoError(t, os.MkdirAll(cfg.WorkspaceRoot, 0o755))

	s, err := NewService(cfg, filepath.Join(base, "project"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterServerEnvelope(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.cfg.WorkspaceRoot, "widget"), 0o755))

	env := s.RegisterServer(context.Background(), registry.RegisterRequest{
		Name:       "widget",
		Command:    "node",
		WorkingDir: "widget",
		Enabled:    true,
	})
	require.True(t, env.Success)
	require.Empty(t, env.ErrorKind)
	def, okCast := env.Data.(*registry.ServerDefinition)
	require.True(t, okCast)
	require.Equal(t, "widget", def.Name)
}

func TestRegisterServerMissingDirectoryKind(t *testing.T) {
	s := newTestService(t)
	env := s.RegisterServer(context.Background(), registry.RegisterRequest{
		Name:       "ghost",
		Command:    "node",
		WorkingDir: "nope",
	})
	require.False(t, env.Success)
	require.Equal(t, "directory_not_found", env.ErrorKind)
	require.NotEmpty(t, env.Error)
}

func TestSmokeRunErrorKinds(t *testing.T) {
	s := newTestService(t)

	env := s.SmokeRun(context.Background(), smoketest.RunRequest{ServerName: "ghost"})
	require.False(t, env.Success)
	require.Equal(t, "server_not_found", env.ErrorKind)

	require.NoError(t, os.MkdirAll(filepath.Join(s.cfg.WorkspaceRoot, "parked"), 0o755))
	reg := s.RegisterServer(context.Background(), registry.RegisterRequest{
		Name:       "parked",
		Command:    "node",
		WorkingDir: "parked",
		Enabled:    false,
	})
	require.True(t, reg.Success)

	env = s.SmokeRun(context.Background(), smoketest.RunRequest{ServerName: "parked"})
	require.False(t, env.Success)
	require.Equal(t, "server_disabled", env.ErrorKind)
}

func TestCloneAndBuildFailureKind(t *testing.T) {
	s := newTestService(t)
	env := s.CloneAndBuild(context.Background(), acquire.CloneRequest{
		RepoURL: filepath.Join(t.TempDir(), "missing-repo"),
	})
	require.False(t, env.Success)
	require.Equal(t, "clone_failed", env.ErrorKind)
	require.NotNil(t, env.Data, "partial handle travels in the envelope")
}

func TestGenerateCompletionNoProvidersKind(t *testing.T) {
	s := newTestService(t)
	env := s.GenerateCompletion(context.Background(), CompletionParams{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	})
	require.False(t, env.Success)
	require.Equal(t, "no_providers_configured", env.ErrorKind)
}

func TestAnalyzeSelfNoProvidersKind(t *testing.T) {
	s := newTestService(t)
	env := s.AnalyzeSelf(context.Background(), selfdev.AnalyzeRequest{})
	require.False(t, env.Success)
	require.Equal(t, "no_providers_configured", env.ErrorKind)
}

func TestRollbackKinds(t *testing.T) {
	s := newTestService(t)

	// Refusal is a successful, non-destructive result.
	env := s.RollbackModifications(context.Background(), backup.RollbackRequest{})
	require.True(t, env.Success)
	result, okCast := env.Data.(*backup.RollbackResult)
	require.True(t, okCast)
	require.True(t, result.Refused)

	env = s.RollbackModifications(context.Background(), backup.RollbackRequest{Confirm: true})
	require.False(t, env.Success)
	require.Equal(t, "no_backups_found", env.ErrorKind)
}

func TestValidateChangesEnvelope(t *testing.T) {
	s := newTestService(t)
	env := s.ValidateChanges(context.Background(), selfdev.ValidateRequest{})
	require.True(t, env.Success, "an empty target set is a clean pass")
}

func TestProviderStatusEmpty(t *testing.T) {
	s := newTestService(t)
	env := s.ProviderStatus(context.Background())
	require.True(t, env.Success)
}

func TestClassifyFallback(t *testing.T) {
	require.Equal(t, "internal", classify(errors.New("anything else")))
	require.Equal(t, "timeout", classify(context.DeadlineExceeded))
	require.Equal(t, "insufficient_providers", classify(provider.ErrInsufficientProviders))
	require.Equal(t, "unknown_provider", classify(&provider.UnknownProviderError{Name: "ghost"}))
}
