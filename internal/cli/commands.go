// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/forgelabs/mcpsmith/internal/acquire"
	"github.com/forgelabs/mcpsmith/internal/api"
	"github.com/forgelabs/mcpsmith/internal/backup"
	"github.com/forgelabs/mcpsmith/internal/hub"
	"github.com/forgelabs/mcpsmith/internal/provider"
	"github.com/forgelabs/mcpsmith/internal/registry"
	"github.com/forgelabs/mcpsmith/internal/selfdev"
	"github.com/forgelabs/mcpsmith/internal/smoketest"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()

			ctx, cancel := signalContext()
			defer cancel()
			return api.NewServer(a.cfg, service).Run(ctx)
		},
	}
}

func (a *app) providersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Probe the configured AI providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			return printEnvelope(service.ProviderStatus(cmd.Context()))
		},
	}
}

func (a *app) cloneAndBuildCommand() *cobra.Command {
	var req acquire.CloneRequest
	cmd := &cobra.Command{
		Use:   "clone-and-build",
		Short: "Clone a repository into the workspace and build it",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			return printEnvelope(service.CloneAndBuild(cmd.Context(), req))
		},
	}
	cmd.Flags().StringVar(&req.RepoURL, "repo-url", "", "repository URL to clone")
	cmd.Flags().StringVar(&req.Name, "name", "", "override the derived project name")
	cmd.Flags().StringVar(&req.Branch, "branch", "", "branch to check out")
	cmd.Flags().StringArrayVar(&req.BuildCommands, "build-command", nil, "explicit build command (repeatable, overrides ecosystem detection)")
	cmd.Flags().BoolVar(&req.PullIfExists, "pull", false, "update an existing checkout instead of skipping it")
	_ = cmd.MarkFlagRequired("repo-url")
	return cmd
}

func (a *app) registerServerCommand() *cobra.Command {
	var req registry.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register-server",
		Short: "Register a tool server with the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			return printEnvelope(service.RegisterServer(cmd.Context(), req))
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "unique server name")
	cmd.Flags().StringVar(&req.Command, "command", "", "launch command")
	cmd.Flags().StringArrayVar(&req.Args, "arg", nil, "launch argument (repeatable)")
	cmd.Flags().StringVar(&req.WorkingDir, "working-dir", "", "working directory, resolved against the workspace root")
	cmd.Flags().StringToStringVar(&req.Env, "env", nil, "environment entries (key=value)")
	cmd.Flags().BoolVar(&req.Enabled, "enabled", true, "register the server enabled")
	cmd.Flags().StringVar(&req.Owner, "owner", "", "owner label")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

func (a *app) smokeRunCommand() *cobra.Command {
	var (
		req            smoketest.RunRequest
		timeoutSeconds int
	)
	cmd := &cobra.Command{
		Use:   "smoke-run",
		Short: "Probe every tool of a registered server",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			req.Timeout = time.Duration(timeoutSeconds) * time.Second
			return printEnvelope(service.SmokeRun(cmd.Context(), req))
		},
	}
	cmd.Flags().StringVar(&req.ServerName, "server", "", "registered server name")
	cmd.Flags().StringArrayVar(&req.ToolFilter, "tool", nil, "probe only this tool (repeatable)")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "per-tool call timeout in seconds")
	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func (a *app) generateCompletionCommand() *cobra.Command {
	var (
		prompt    string
		system    string
		preferred string
		model     string
		maxTokens int
		temp      float64
	)
	cmd := &cobra.Command{
		Use:   "generate-completion",
		Short: "Run one chat completion through the provider manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()

			var messages []provider.Message
			if system != "" {
				messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: system})
			}
			messages = append(messages, provider.Message{Role: provider.RoleUser, Content: prompt})
			return printEnvelope(service.GenerateCompletion(cmd.Context(), hub.CompletionParams{
				Messages: messages,
				Options: provider.CompletionOptions{
					PreferredProvider: preferred,
					Model:             model,
					MaxTokens:         maxTokens,
					Temperature:       temp,
				},
			}))
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "user prompt")
	cmd.Flags().StringVar(&system, "system", "", "optional system prompt")
	cmd.Flags().StringVar(&preferred, "provider", "", "preferred provider")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "completion token limit")
	cmd.Flags().Float64Var(&temp, "temperature", 0, "sampling temperature")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func (a *app) analyzeSelfCommand() *cobra.Command {
	var (
		req  selfdev.AnalyzeRequest
		kind string
	)
	cmd := &cobra.Command{
		Use:   "analyze-self",
		Short: "Analyze the hub's own source files",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			req.Kind = provider.AnalysisKind(kind)
			return printEnvelope(service.AnalyzeSelf(cmd.Context(), req))
		},
	}
	cmd.Flags().StringArrayVar(&req.ProviderNames, "provider", nil, "provider to use (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", "general", "analysis kind: quality, security, performance, general")
	cmd.Flags().StringArrayVar(&req.TargetFiles, "file", nil, "analyze only this file (repeatable)")
	cmd.Flags().BoolVar(&req.Ensemble, "ensemble", false, "request multi-provider consensus")
	return cmd
}

func (a *app) improveCodebaseCommand() *cobra.Command {
	var (
		req  selfdev.ImproveRequest
		kind string
	)
	cmd := &cobra.Command{
		Use:   "improve-codebase",
		Short: "Propose and apply AI rewrites to the hub's own source files",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			req.Kind = selfdev.ImprovementKind(kind)
			return printEnvelope(service.ImproveCodebase(cmd.Context(), req))
		},
	}
	cmd.Flags().StringArrayVar(&req.ProviderNames, "provider", nil, "provider to use (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", string(selfdev.ImproveComprehensive), "improvement kind: redundancy, hardening, performance, security, comprehensive")
	cmd.Flags().StringArrayVar(&req.TargetFiles, "file", nil, "improve only this file (repeatable)")
	cmd.Flags().StringVar(&req.SafetyLevel, "safety", selfdev.SafetyConservative, "safety level: conservative or aggressive")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "propose without writing anything")
	return cmd
}

func (a *app) validateChangesCommand() *cobra.Command {
	var (
		req   selfdev.ValidateRequest
		kinds []string
	)
	cmd := &cobra.Command{
		Use:   "validate-changes",
		Short: "Run the validation pipeline over changed files",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			for _, k := range kinds {
				req.Kinds = append(req.Kinds, selfdev.CheckKind(k))
			}
			return printEnvelope(service.ValidateChanges(cmd.Context(), req))
		},
	}
	cmd.Flags().StringArrayVar(&req.FilePaths, "file", nil, "validate only this file (repeatable)")
	cmd.Flags().StringArrayVar(&kinds, "kind", nil, "check kind: syntax, semantic, security, performance, functional (repeatable)")
	cmd.Flags().BoolVar(&req.RunTests, "run-tests", false, "also run the configured test command")
	return cmd
}

func (a *app) rollbackCommand() *cobra.Command {
	var req backup.RollbackRequest
	cmd := &cobra.Command{
		Use:   "rollback-modifications",
		Short: "Restore files from a pre-modification snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := a.ensureService()
			if err != nil {
				return err
			}
			defer service.Close()
			return printEnvelope(service.RollbackModifications(cmd.Context(), req))
		},
	}
	cmd.Flags().StringVar(&req.SnapshotID, "snapshot", "", "snapshot id (defaults to the latest)")
	cmd.Flags().StringArrayVar(&req.FilePaths, "file", nil, "restore only this file (repeatable)")
	cmd.Flags().BoolVar(&req.Confirm, "confirm", false, "actually restore; rollback refuses without it")
	return cmd
}
