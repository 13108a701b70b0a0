// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package acquire

import (
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// DetectEcosystem inspects marker files at the project root. Node markers win
// over Python markers when both are present.
func DetectEcosystem(projectDir string) Ecosystem {
	if fileExists(filepath.Join(projectDir, "package.json")) {
		return EcosystemNode
	}
	if fileExists(filepath.Join(projectDir, "requirements.txt")) ||
		fileExists(filepath.Join(projectDir, "pyproject.toml")) {
		return EcosystemPython
	}
	return EcosystemUnknown
}

// ConventionalBuildCommands returns the install/build steps for the detected
// ecosystem. For node the build step is only emitted when package.json
// declares a build script.
func ConventionalBuildCommands(projectDir string, eco Ecosystem) []string {
	switch eco {
	case EcosystemNode:
		commands := []string{"npm install"}
		if raw, err := os.ReadFile(filepath.Join(projectDir, "package.json")); err == nil {
			if gjson.GetBytes(raw, "scripts.build").Exists() {
				commands = append(commands, "npm run build")
			}
		}
		return commands
	case EcosystemPython:
		if fileExists(filepath.Join(projectDir, "requirements.txt")) {
			return []string{"pip install -r requirements.txt"}
		}
		return []string{"pip install ."}
	default:
		return nil
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
