// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the hub's operations over HTTP. Transport concerns only:
// request binding, the management-key check, and request ids. All domain
// behavior lives behind the hub facade.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/acquire"
	"github.com/forgelabs/mcpsmith/internal/backup"
	"github.com/forgelabs/mcpsmith/internal/config"
	"github.com/forgelabs/mcpsmith/internal/hub"
	"github.com/forgelabs/mcpsmith/internal/provider"
	"github.com/forgelabs/mcpsmith/internal/registry"
	"github.com/forgelabs/mcpsmith/internal/selfdev"
	"github.com/forgelabs/mcpsmith/internal/smoketest"
)

// Server serves the ops API.
type Server struct {
	cfg     *config.Config
	service *hub.Service
	http    *http.Server
}

// NewServer builds the ops API server around a hub service.
func NewServer(cfg *config.Config, service *hub.Service) *Server {
	s := &Server{cfg: cfg, service: service}
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.buildRouter(),
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("api: listening on %s", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1", s.managementKeyMiddleware())
	v1.GET("/providers/status", s.handleProviderStatus)

	ops := v1.Group("/ops")
	ops.POST("/clone-and-build", s.handleCloneAndBuild)
	ops.POST("/register-server", s.handleRegisterServer)
	ops.POST("/smoke-run", s.handleSmokeRun)
	ops.POST("/generate-completion", s.handleGenerateCompletion)
	ops.POST("/analyze-self", s.handleAnalyzeSelf)
	ops.POST("/improve-codebase", s.handleImproveCodebase)
	ops.POST("/validate-changes", s.handleValidateChanges)
	ops.POST("/rollback-modifications", s.handleRollback)
	return router
}

const requestLoggerKey = "request_logger"

// requestIDMiddleware tags every request with an id the logging formatter
// picks up and emits one access log line per request. An inbound X-Request-ID
// is honored.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		entry := log.WithField("request_id", id)
		c.Set("request_id", id)
		c.Set(requestLoggerKey, entry)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()
		entry.Infof("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// requestLogger returns the request-scoped log entry carrying the request id.
func requestLogger(c *gin.Context) *log.Entry {
	if v, ok := c.Get(requestLoggerKey); ok {
		if entry, ok := v.(*log.Entry); ok {
			return entry
		}
	}
	return log.NewEntry(log.StandardLogger())
}

// managementKeyMiddleware enforces X-Management-Key when a key is configured.
func (s *Server) managementKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.CheckManagementKey(c.GetHeader("X-Management-Key")) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid management key",
			})
			return
		}
		c.Next()
	}
}

func reply(c *gin.Context, env *hub.Envelope) {
	if !env.Success {
		requestLogger(c).Warnf("operation failed: %s: %s", env.ErrorKind, env.Error)
	}
	c.JSON(http.StatusOK, env)
}

func bindError(c *gin.Context, err error) {
	requestLogger(c).Warnf("request rejected: %v", err)
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "invalid request body: " + err.Error(),
	})
}

type cloneAndBuildRequest struct {
	RepoURL       string            `json:"repo_url" binding:"required"`
	Name          string            `json:"name"`
	Branch        string            `json:"branch"`
	BuildCommands []string          `json:"build_commands"`
	Env           map[string]string `json:"env"`
	PullIfExists  bool              `json:"pull_if_exists"`
}

func (s *Server) handleCloneAndBuild(c *gin.Context) {
	var req cloneAndBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	reply(c, s.service.CloneAndBuild(c.Request.Context(), acquire.CloneRequest{
		RepoURL:       req.RepoURL,
		Name:          req.Name,
		Branch:        req.Branch,
		BuildCommands: req.BuildCommands,
		Env:           req.Env,
		PullIfExists:  req.PullIfExists,
	}))
}

type registerServerRequest struct {
	Name       string            `json:"name" binding:"required"`
	Command    string            `json:"command" binding:"required"`
	Args       []string          `json:"args"`
	WorkingDir string            `json:"working_dir"`
	Env        map[string]string `json:"env"`
	Enabled    bool              `json:"enabled"`
	Owner      string            `json:"owner"`
}

func (s *Server) handleRegisterServer(c *gin.Context) {
	var req registerServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	reply(c, s.service.RegisterServer(c.Request.Context(), registry.RegisterRequest{
		Name:       req.Name,
		Command:    req.Command,
		Args:       req.Args,
		WorkingDir: req.WorkingDir,
		Env:        req.Env,
		Enabled:    req.Enabled,
		Owner:      req.Owner,
	}))
}

type smokeRunRequest struct {
	ServerName     string                    `json:"server_name" binding:"required"`
	ToolFilter     []string                  `json:"tool_filter"`
	ArgsOverrides  map[string]map[string]any `json:"args_overrides"`
	TimeoutSeconds int                       `json:"timeout_seconds"`
}

func (s *Server) handleSmokeRun(c *gin.Context) {
	var req smokeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	reply(c, s.service.SmokeRun(c.Request.Context(), smoketest.RunRequest{
		ServerName:    req.ServerName,
		ToolFilter:    req.ToolFilter,
		ArgsOverrides: req.ArgsOverrides,
		Timeout:       time.Duration(req.TimeoutSeconds) * time.Second,
	}))
}

type generateCompletionRequest struct {
	Messages          []provider.Message `json:"messages" binding:"required"`
	PreferredProvider string             `json:"preferred_provider"`
	FallbackProviders []string           `json:"fallback_providers"`
	Model             string             `json:"model"`
	MaxTokens         int                `json:"max_tokens"`
	Temperature       float64            `json:"temperature"`
	MaxRetries        int                `json:"max_retries"`
}

func (s *Server) handleGenerateCompletion(c *gin.Context) {
	var req generateCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	reply(c, s.service.GenerateCompletion(c.Request.Context(), hub.CompletionParams{
		Messages: req.Messages,
		Options: provider.CompletionOptions{
			PreferredProvider: req.PreferredProvider,
			FallbackProviders: req.FallbackProviders,
			Model:             req.Model,
			MaxTokens:         req.MaxTokens,
			Temperature:       req.Temperature,
			MaxRetries:        req.MaxRetries,
		},
	}))
}

type analyzeSelfRequest struct {
	ProviderNames []string `json:"provider_names"`
	Kind          string   `json:"kind"`
	TargetFiles   []string `json:"target_files"`
	Ensemble      bool     `json:"ensemble"`
}

func (s *Server) handleAnalyzeSelf(c *gin.Context) {
	var req analyzeSelfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	reply(c, s.service.AnalyzeSelf(c.Request.Context(), selfdev.AnalyzeRequest{
		ProviderNames: req.ProviderNames,
		Kind:          provider.AnalysisKind(req.Kind),
		TargetFiles:   req.TargetFiles,
		Ensemble:      req.Ensemble,
	}))
}

type improveCodebaseRequest struct {
	ProviderNames []string `json:"provider_names"`
	Kind          string   `json:"kind"`
	TargetFiles   []string `json:"target_files"`
	SafetyLevel   string   `json:"safety_level"`
	DryRun        bool     `json:"dry_run"`
}

func (s *Server) handleImproveCodebase(c *gin.Context) {
	var req improveCodebaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	reply(c, s.service.ImproveCodebase(c.Request.Context(), selfdev.ImproveRequest{
		ProviderNames: req.ProviderNames,
		Kind:          selfdev.ImprovementKind(req.Kind),
		TargetFiles:   req.TargetFiles,
		SafetyLevel:   req.SafetyLevel,
		DryRun:        req.DryRun,
	}))
}

type validateChangesRequest struct {
	FilePaths []string `json:"file_paths"`
	Kinds     []string `json:"kinds"`
	RunTests  bool     `json:"run_tests"`
}

func (s *Server) handleValidateChanges(c *gin.Context) {
	var req validateChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	kinds := make([]selfdev.CheckKind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, selfdev.CheckKind(k))
	}
	reply(c, s.service.ValidateChanges(c.Request.Context(), selfdev.ValidateRequest{
		FilePaths: req.FilePaths,
		Kinds:     kinds,
		RunTests:  req.RunTests,
	}))
}

type rollbackRequest struct {
	SnapshotID string   `json:"snapshot_id"`
	FilePaths  []string `json:"file_paths"`
	Confirm    bool     `json:"confirm"`
}

func (s *Server) handleRollback(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	reply(c, s.service.RollbackModifications(c.Request.Context(), backup.RollbackRequest{
		SnapshotID: req.SnapshotID,
		FilePaths:  req.FilePaths,
		Confirm:    req.Confirm,
	}))
}

func (s *Server) handleProviderStatus(c *gin.Context) {
	reply(c, s.service.ProviderStatus(c.Request.Context()))
}
