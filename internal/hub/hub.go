// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hub is the operation facade: it owns the configured engines and
// exposes the hub's operations as structured result envelopes. Domain
// failures never cross this boundary as Go errors; they are mapped to an
// error kind inside the envelope.
package hub

import (
	"context"
	"errors"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/acquire"
	"github.com/forgelabs/mcpsmith/internal/backup"
	"github.com/forgelabs/mcpsmith/internal/config"
	"github.com/forgelabs/mcpsmith/internal/provider"
	"github.com/forgelabs/mcpsmith/internal/registry"
	"github.com/forgelabs/mcpsmith/internal/selfdev"
	"github.com/forgelabs/mcpsmith/internal/smoketest"
)

// Envelope is the uniform operation result.
type Envelope struct {
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Data      any    `json:"data,omitempty"`
}

func ok(data any) *Envelope {
	return &Envelope{Success: true, Data: data}
}

func fail(err error, data any) *Envelope {
	return &Envelope{Success: false, ErrorKind: classify(err), Error: err.Error(), Data: data}
}

// classify maps the error taxonomy to stable envelope kinds.
func classify(err error) string {
	var (
		cloneErr    *acquire.CloneError
		buildErr    *acquire.BuildError
		dirErr      *registry.DirectoryNotFoundError
		regErr      *registry.RegistrationError
		notFoundErr *smoketest.ServerNotFoundError
		disabledErr *smoketest.ServerDisabledError
		unknownErr  *provider.UnknownProviderError
		upstreamErr *provider.UpstreamError
	)
	switch {
	case errors.As(err, &cloneErr):
		return "clone_failed"
	case errors.As(err, &buildErr):
		return "build_failed"
	case errors.As(err, &dirErr):
		return "directory_not_found"
	case errors.As(err, &regErr):
		return "registration_failed"
	case errors.As(err, &notFoundErr):
		return "server_not_found"
	case errors.As(err, &disabledErr):
		return "server_disabled"
	case errors.As(err, &unknownErr):
		return "unknown_provider"
	case errors.Is(err, provider.ErrNoProvidersConfigured):
		return "no_providers_configured"
	case errors.Is(err, provider.ErrInsufficientProviders):
		return "insufficient_providers"
	case errors.Is(err, provider.ErrEnsembleFailed):
		return "ensemble_failed"
	case errors.Is(err, provider.ErrAllProvidersExhausted):
		return "all_providers_exhausted"
	case errors.Is(err, provider.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, provider.ErrTimeout):
		return "timeout"
	case errors.Is(err, provider.ErrContextExceeded):
		return "context_exceeded"
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	case errors.Is(err, backup.ErrNoBackupsFound):
		return "no_backups_found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}

// Service owns the engines behind the hub's operations.
type Service struct {
	cfg       *config.Config
	pipeline  *acquire.Pipeline
	store     *registry.FileStore
	registrar *registry.Registrar
	smoke     *smoketest.Runner
	manager   *provider.Manager
	snapshots *backup.Manager
	engine    *selfdev.Engine
}

// NewService wires all engines from the configuration. projectRoot is the
// source tree the self-development engines operate on.
func NewService(cfg *config.Config, projectRoot string) (*Service, error) {
	store, err := registry.NewFileStore(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	if err := store.Watch(); err != nil {
		store.Close()
		return nil, err
	}

	manager := provider.NewManager(cfg)
	snapshots := backup.NewManager(cfg.BackupRoot, projectRoot)
	s := &Service{
		cfg:       cfg,
		pipeline:  acquire.NewPipeline(cfg.WorkspaceRoot, cfg.Acquire.CommandTimeout()),
		store:     store,
		smoke:     smoketest.NewRunner(store, nil, cfg.Smoke.CallTimeout()),
		manager:   manager,
		snapshots: snapshots,
		engine:    selfdev.NewEngine(cfg, manager, snapshots, projectRoot),
	}
	s.registrar = registry.NewRegistrar(store, cfg.WorkspaceRoot, func(name string) {
		log.Debugf("hub: reload notification for server %s", name)
	})
	log.Infof("hub: service ready (workspace=%s, providers=%v)",
		filepath.Clean(cfg.WorkspaceRoot), manager.Providers())
	return s, nil
}

// Close releases the settings watcher.
func (s *Service) Close() error {
	return s.store.Close()
}

// Manager exposes the provider manager for availability reporting.
func (s *Service) Manager() *provider.Manager { return s.manager }

// CloneAndBuild acquires and builds a repository.
func (s *Service) CloneAndBuild(ctx context.Context, req acquire.CloneRequest) *Envelope {
	handle, err := s.pipeline.CloneAndBuild(ctx, req)
	if err != nil {
		return fail(err, handle)
	}
	return ok(handle)
}

// RegisterServer validates and persists a tool-server definition.
func (s *Service) RegisterServer(ctx context.Context, req registry.RegisterRequest) *Envelope {
	def, err := s.registrar.Register(ctx, req)
	if err != nil {
		return fail(err, nil)
	}
	return ok(def)
}

// SmokeRun probes a registered server's tools.
func (s *Service) SmokeRun(ctx context.Context, req smoketest.RunRequest) *Envelope {
	report, err := s.smoke.Run(ctx, req)
	if err != nil {
		return fail(err, nil)
	}
	return ok(report)
}

// CompletionParams shapes a direct completion request.
type CompletionParams struct {
	Messages []provider.Message         `json:"messages"`
	Options  provider.CompletionOptions `json:"options"`
}

// GenerateCompletion runs one chat completion through the provider manager.
func (s *Service) GenerateCompletion(ctx context.Context, req CompletionParams) *Envelope {
	result, err := s.manager.GenerateCompletion(ctx, req.Messages, req.Options)
	if err != nil {
		return fail(err, nil)
	}
	return ok(result)
}

// AnalyzeSelf critiques the hub's own source files.
func (s *Service) AnalyzeSelf(ctx context.Context, req selfdev.AnalyzeRequest) *Envelope {
	report, err := s.engine.AnalyzeSelf(ctx, req)
	if err != nil {
		return fail(err, report)
	}
	return ok(report)
}

// ImproveCodebase proposes and conditionally applies rewrites.
func (s *Service) ImproveCodebase(ctx context.Context, req selfdev.ImproveRequest) *Envelope {
	report, err := s.engine.ImproveCodebase(ctx, req)
	if err != nil {
		return fail(err, report)
	}
	return ok(report)
}

// ValidateChanges runs the validation pipeline.
func (s *Service) ValidateChanges(ctx context.Context, req selfdev.ValidateRequest) *Envelope {
	report, err := s.engine.ValidateChanges(ctx, req)
	if err != nil {
		return fail(err, report)
	}
	return ok(report)
}

// RollbackModifications restores files from a snapshot.
func (s *Service) RollbackModifications(ctx context.Context, req backup.RollbackRequest) *Envelope {
	result, err := s.snapshots.Rollback(ctx, req)
	if err != nil {
		return fail(err, result)
	}
	return ok(result)
}

// ProviderStatus probes every configured adapter.
func (s *Service) ProviderStatus(ctx context.Context) *Envelope {
	return ok(s.manager.AvailabilityReport(ctx))
}
