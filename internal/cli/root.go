// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cli wires the mcpsmith command tree: one subcommand per hub
// operation plus serve and providers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forgelabs/mcpsmith/internal/buildinfo"
	"github.com/forgelabs/mcpsmith/internal/config"
	"github.com/forgelabs/mcpsmith/internal/hub"
	"github.com/forgelabs/mcpsmith/internal/logging"
)

// errOperationFailed signals a Success=false envelope; the envelope itself has
// already been printed.
var errOperationFailed = errors.New("operation failed")

type app struct {
	configPath string
	cfg        *config.Config
	service    *hub.Service
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "mcpsmith",
		Short:         "Tool-server provisioning hub with supervised self-development",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Environment first so the config file can reference it.
			_ = godotenv.Load()

			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			logging.SetupBaseLogger()
			if cfg.Debug {
				log.SetLevel(log.DebugLevel)
			}
			return logging.ConfigureLogOutput("", cfg.LoggingToFile)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "mcpsmith.yaml", "path to the configuration file")

	root.AddCommand(
		a.serveCommand(),
		a.providersCommand(),
		a.cloneAndBuildCommand(),
		a.registerServerCommand(),
		a.smokeRunCommand(),
		a.generateCompletionCommand(),
		a.analyzeSelfCommand(),
		a.improveCodebaseCommand(),
		a.validateChangesCommand(),
		a.rollbackCommand(),
	)
	return root
}

// Execute runs the command tree and maps failed operations to exit code 1.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, errOperationFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		log.Exit(1)
	}
	log.Exit(0)
}

// ensureService builds the hub service on first use.
func (a *app) ensureService() (*hub.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	service, err := hub.NewService(a.cfg, ".")
	if err != nil {
		return nil, err
	}
	a.service = service
	return service, nil
}

// printEnvelope renders the envelope as indented JSON and reports failed
// operations through the exit code.
func printEnvelope(env *hub.Envelope) error {
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !env.Success {
		return errOperationFailed
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
