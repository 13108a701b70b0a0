// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selfdev

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxWalkFiles caps the recursive walk so a misconfigured source root cannot
// flood an analysis run.
const maxWalkFiles = 200

// excludedDirs are never descended into during walks.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

// sourceLanguages maps file extensions to the language name used in prompts.
// Files outside this map are not analysis targets.
var sourceLanguages = map[string]string{
	".go": "go",
	".js": "javascript",
	".ts": "typescript",
	".py": "python",
	".sh": "shell",
}

// languageFor returns the prompt language for a path, or "" when the file is
// not a recognized source file.
func languageFor(path string) string {
	return sourceLanguages[strings.ToLower(filepath.Ext(path))]
}

// resolveFiles returns root-relative source file paths: the explicit list when
// given (each verified to exist), otherwise a capped recursive walk of the
// roots. Hidden and dependency-cache directories are skipped.
func resolveFiles(projectRoot string, roots []string, explicit []string, limit int) ([]string, error) {
	if limit <= 0 || limit > maxWalkFiles {
		limit = maxWalkFiles
	}
	if len(explicit) > 0 {
		var out []string
		for _, path := range explicit {
			rel := path
			if filepath.IsAbs(rel) {
				var err error
				rel, err = filepath.Rel(projectRoot, rel)
				if err != nil {
					return nil, fmt.Errorf("resolve %s: %w", path, err)
				}
			}
			if _, err := os.Stat(filepath.Join(projectRoot, rel)); err != nil {
				return nil, fmt.Errorf("target file %s: %w", path, err)
			}
			out = append(out, filepath.ToSlash(rel))
			if len(out) >= limit {
				break
			}
		}
		return out, nil
	}

	var out []string
	for _, root := range roots {
		base := filepath.Join(projectRoot, root)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			name := d.Name()
			if d.IsDir() {
				if path != base && (excludedDirs[name] || strings.HasPrefix(name, ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || languageFor(name) == "" {
				return nil
			}
			rel, relErr := filepath.Rel(projectRoot, path)
			if relErr != nil {
				return nil
			}
			out = append(out, filepath.ToSlash(rel))
			if len(out) >= limit {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if len(out) >= limit {
			break
		}
	}
	sort.Strings(out)
	return out, nil
}

// recentlyModified filters the walked source files down to those whose mtime
// falls within the lookback window.
func recentlyModified(projectRoot string, roots []string, lookback time.Duration) ([]string, error) {
	all, err := resolveFiles(projectRoot, roots, nil, maxWalkFiles)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-lookback)
	var out []string
	for _, rel := range all {
		info, err := os.Stat(filepath.Join(projectRoot, rel))
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			out = append(out, rel)
		}
	}
	return out, nil
}

// underRoots reports whether rel sits inside one of the given subtrees.
func underRoots(rel string, roots []string) bool {
	rel = filepath.ToSlash(rel)
	for _, root := range roots {
		root = strings.TrimSuffix(filepath.ToSlash(root), "/")
		if rel == root || strings.HasPrefix(rel, root+"/") {
			return true
		}
	}
	return false
}
