// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the mcpsmith hub.
// It handles loading and parsing the YAML configuration file and provides
// structured access to application settings: workspace and backup roots,
// provider credentials, build limits, and self-development tuning knobs.
package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the ops API server will bind.
	// Default is empty ("") to bind all interfaces. Use "127.0.0.1" for local-only access.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the ops API server will listen.
	Port int `yaml:"port" json:"port"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// WorkspaceRoot is the directory under which acquired projects are cloned,
	// one subdirectory per project.
	WorkspaceRoot string `yaml:"workspace-root" json:"workspace-root"`

	// BackupRoot is the directory under which pre-modification snapshots are
	// stored, one subdirectory per snapshot id.
	BackupRoot string `yaml:"backup-root" json:"backup-root"`

	// SettingsFile is the JSON document persisting registered server definitions.
	SettingsFile string `yaml:"settings-file" json:"settings-file"`

	// ManagementKey protects the ops API. Stored as a bcrypt hash; a plaintext
	// value is accepted for local development and compared in constant time.
	// Empty disables the check.
	ManagementKey string `yaml:"management-key" json:"-"`

	// Providers holds per-backend credentials and limits.
	Providers ProvidersConfig `yaml:"providers" json:"providers"`

	// Acquire tunes the repository acquisition and build pipeline.
	Acquire AcquireConfig `yaml:"acquire" json:"acquire"`

	// Smoke tunes the smoke test runner.
	Smoke SmokeConfig `yaml:"smoke" json:"smoke"`

	// Improve tunes the self-modification engine.
	Improve ImproveConfig `yaml:"improve" json:"improve"`

	// Validate tunes the post-modification validation pipeline.
	Validate ValidateConfig `yaml:"validate" json:"validate"`

	// SourceRoots are the directories the self-analysis and self-modification
	// engines are allowed to walk, relative to the hub source tree.
	SourceRoots []string `yaml:"source-roots" json:"source-roots"`
}

// ProvidersConfig groups the configured AI backend credentials.
type ProvidersConfig struct {
	// OpenAI configures the OpenAI chat-completion adapter.
	OpenAI ProviderConfig `yaml:"openai" json:"openai"`
	// Anthropic configures the Anthropic messages adapter.
	Anthropic ProviderConfig `yaml:"anthropic" json:"anthropic"`
	// Gemini configures the Gemini adapter (official genai client).
	Gemini ProviderConfig `yaml:"gemini" json:"gemini"`
}

// ProviderConfig holds one backend's credentials and limits.
type ProviderConfig struct {
	// APIKey authenticates against the backend. Empty leaves the adapter unconfigured.
	APIKey string `yaml:"api-key" json:"-"`
	// BaseURL overrides the backend endpoint (proxies, compatible gateways).
	BaseURL string `yaml:"base-url" json:"base-url"`
	// Model overrides the adapter's default model.
	Model string `yaml:"model" json:"model"`
	// MinRequestIntervalMs is the minimum spacing between two requests to this
	// backend. Calls arriving earlier fail fast with a rate-limit error.
	MinRequestIntervalMs int `yaml:"min-request-interval-ms" json:"min-request-interval-ms"`
}

// MinRequestInterval returns the configured spacing as a duration.
func (p ProviderConfig) MinRequestInterval() time.Duration {
	return time.Duration(p.MinRequestIntervalMs) * time.Millisecond
}

// AcquireConfig tunes the clone-and-build pipeline.
type AcquireConfig struct {
	// CommandTimeoutSeconds is the hard wall-clock limit per build command.
	// The child process is killed on expiry.
	CommandTimeoutSeconds int `yaml:"command-timeout-seconds" json:"command-timeout-seconds"`
}

// CommandTimeout returns the per-command limit as a duration.
func (a AcquireConfig) CommandTimeout() time.Duration {
	return time.Duration(a.CommandTimeoutSeconds) * time.Second
}

// SmokeConfig tunes the smoke test runner.
type SmokeConfig struct {
	// CallTimeoutSeconds is the per-tool call limit.
	CallTimeoutSeconds int `yaml:"call-timeout-seconds" json:"call-timeout-seconds"`
}

// CallTimeout returns the per-tool limit as a duration.
func (s SmokeConfig) CallTimeout() time.Duration {
	return time.Duration(s.CallTimeoutSeconds) * time.Second
}

// ImproveConfig tunes the self-modification engine.
type ImproveConfig struct {
	// ApplyThreshold is the minimum proposal confidence required before a
	// rewrite is written to disk.
	ApplyThreshold float64 `yaml:"apply-threshold" json:"apply-threshold"`
	// MaxFilesPerRun caps how many files one improve run may touch.
	MaxFilesPerRun int `yaml:"max-files-per-run" json:"max-files-per-run"`
	// SafeRoots restricts modification targets to these subtrees. Defaults to
	// the source roots when empty.
	SafeRoots []string `yaml:"safe-roots" json:"safe-roots"`
}

// ValidateConfig tunes the validation pipeline.
type ValidateConfig struct {
	// LookbackMinutes bounds the recent-mtime heuristic used when no explicit
	// file list is given.
	LookbackMinutes int `yaml:"lookback-minutes" json:"lookback-minutes"`
	// TestCommand is the shell command run when tests are requested.
	TestCommand string `yaml:"test-command" json:"test-command"`
	// TestTimeoutSeconds is the hard wall-clock limit for the test command.
	TestTimeoutSeconds int `yaml:"test-timeout-seconds" json:"test-timeout-seconds"`
}

// Lookback returns the recent-mtime window as a duration.
func (v ValidateConfig) Lookback() time.Duration {
	return time.Duration(v.LookbackMinutes) * time.Minute
}

// TestTimeout returns the test command limit as a duration.
func (v ValidateConfig) TestTimeout() time.Duration {
	return time.Duration(v.TestTimeoutSeconds) * time.Second
}

// LoadConfig reads the YAML configuration from path and applies defaults.
// A missing file is not an error: the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "workspace"
	}
	if c.BackupRoot == "" {
		c.BackupRoot = "backups"
	}
	if c.SettingsFile == "" {
		c.SettingsFile = filepath.Join("settings", "servers.json")
	}
	if c.Acquire.CommandTimeoutSeconds == 0 {
		c.Acquire.CommandTimeoutSeconds = 600
	}
	if c.Smoke.CallTimeoutSeconds == 0 {
		c.Smoke.CallTimeoutSeconds = 30
	}
	if c.Improve.ApplyThreshold == 0 {
		c.Improve.ApplyThreshold = 0.7
	}
	if c.Improve.MaxFilesPerRun == 0 {
		c.Improve.MaxFilesPerRun = 10
	}
	if c.Validate.LookbackMinutes == 0 {
		c.Validate.LookbackMinutes = 30
	}
	if c.Validate.TestCommand == "" {
		c.Validate.TestCommand = "go test ./..."
	}
	if c.Validate.TestTimeoutSeconds == 0 {
		c.Validate.TestTimeoutSeconds = 900
	}
	if len(c.SourceRoots) == 0 {
		c.SourceRoots = []string{"internal", "cmd"}
	}
	if len(c.Improve.SafeRoots) == 0 {
		c.Improve.SafeRoots = append([]string(nil), c.SourceRoots...)
	}
	if c.Providers.OpenAI.MinRequestIntervalMs == 0 {
		c.Providers.OpenAI.MinRequestIntervalMs = 500
	}
	if c.Providers.Anthropic.MinRequestIntervalMs == 0 {
		c.Providers.Anthropic.MinRequestIntervalMs = 500
	}
	if c.Providers.Gemini.MinRequestIntervalMs == 0 {
		c.Providers.Gemini.MinRequestIntervalMs = 1000
	}
}

// CheckManagementKey reports whether the presented key matches the configured
// management key. Bcrypt hashes are detected by prefix; anything else is
// compared in constant time. An empty configured key accepts everything.
func (c *Config) CheckManagementKey(presented string) bool {
	stored := strings.TrimSpace(c.ManagementKey)
	if stored == "" {
		return true
	}
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// HashManagementKey hashes a plaintext management key for storage.
func HashManagementKey(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("config: failed to hash management key: %w", err)
	}
	return string(hashed), nil
}
