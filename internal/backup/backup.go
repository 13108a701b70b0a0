// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package backup snapshots files before self-modification and restores them on
// rollback. Snapshots live under the backup root, one directory per snapshot,
// mirroring the backed-up relative paths.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/fsutil"
)

// ErrNoBackupsFound is returned when a rollback finds no snapshot to restore.
var ErrNoBackupsFound = fmt.Errorf("no backups found")

const manifestName = "manifest.json"

// FileCopy records one backed-up file inside a snapshot.
type FileCopy struct {
	// RelPath is the path relative to the project root; the snapshot mirrors it.
	RelPath string `json:"rel_path"`
	Size    int64  `json:"size"`
}

// Snapshot is one point-in-time copy of a set of files.
type Snapshot struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Reason    string     `json:"reason,omitempty"`
	Files     []FileCopy `json:"files"`
}

// RollbackRequest parameterizes one rollback.
type RollbackRequest struct {
	// SnapshotID selects a snapshot; empty selects the latest.
	SnapshotID string
	// FilePaths restricts the restore to an intersection when non-empty.
	FilePaths []string
	// Confirm must be true; rollback refuses non-destructively otherwise.
	Confirm bool
}

// RestoreOutcome records one file's restore attempt.
type RestoreOutcome struct {
	RelPath  string `json:"rel_path"`
	Restored bool   `json:"restored"`
	Error    string `json:"error,omitempty"`
}

// RollbackResult summarizes one rollback.
type RollbackResult struct {
	SnapshotID    string           `json:"snapshot_id,omitempty"`
	Refused       bool             `json:"refused"`
	RefusalReason string           `json:"refusal_reason,omitempty"`
	RestoredCount int              `json:"restored_count"`
	Outcomes      []RestoreOutcome `json:"outcomes,omitempty"`
}

// Manager owns the snapshot store.
type Manager struct {
	backupRoot  string
	projectRoot string

	mu         sync.Mutex
	lastSecond string
	lastSerial int
}

// NewManager creates a manager snapshotting files under projectRoot into
// backupRoot.
func NewManager(backupRoot, projectRoot string) *Manager {
	return &Manager{backupRoot: backupRoot, projectRoot: projectRoot}
}

// nextID returns a UTC second-resolution id with a counter suffix that keeps
// ids monotonic within the same second.
func (m *Manager) nextID(now time.Time) string {
	second := now.UTC().Format("20060102T150405")
	m.mu.Lock()
	defer m.mu.Unlock()
	if second == m.lastSecond {
		m.lastSerial++
	} else {
		m.lastSecond = second
		m.lastSerial = 0
	}
	return fmt.Sprintf("%s-%03d", second, m.lastSerial)
}

// CreateSnapshot copies the given files (paths relative to the project root,
// or absolute inside it) into a fresh snapshot directory and writes the
// manifest. All files must copy for the snapshot to be created.
func (m *Manager) CreateSnapshot(ctx context.Context, paths []string, reason string) (*Snapshot, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("snapshot requires at least one file")
	}
	snap := &Snapshot{
		CreatedAt: time.Now().UTC(),
		Reason:    reason,
	}
	// The serial counter does not survive a restart; an id issued by an
	// earlier process within the same second must not be reused.
	var snapDir string
	for {
		snap.ID = m.nextID(time.Now())
		snapDir = filepath.Join(m.backupRoot, snap.ID)
		_, err := os.Stat(snapDir)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("probe snapshot dir %s: %w", snapDir, err)
		}
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := m.relPath(path)
		if err != nil {
			return nil, err
		}
		src := filepath.Join(m.projectRoot, rel)
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("snapshot source %s: %w", rel, err)
		}
		if err := fsutil.CopyFile(src, filepath.Join(snapDir, rel), info.Mode().Perm()); err != nil {
			return nil, fmt.Errorf("snapshot copy %s: %w", rel, err)
		}
		snap.Files = append(snap.Files, FileCopy{RelPath: rel, Size: info.Size()})
	}

	if err := fsutil.SecureWriteJSON(filepath.Join(snapDir, manifestName), snap, nil); err != nil {
		return nil, fmt.Errorf("snapshot manifest: %w", err)
	}
	log.Infof("backup: created snapshot %s (%d files)", snap.ID, len(snap.Files))
	return snap, nil
}

// ListSnapshots returns all snapshots sorted by id ascending.
func (m *Manager) ListSnapshots() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.backupRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup root: %w", err)
	}
	var snaps []Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := m.readManifest(entry.Name())
		if err != nil {
			log.Warnf("backup: skipping snapshot %s: %v", entry.Name(), err)
			continue
		}
		snaps = append(snaps, *snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps, nil
}

// Rollback restores files from a snapshot. Without Confirm it refuses and
// leaves the filesystem untouched. Per-file restore failures are recorded and
// do not abort the remaining restores.
func (m *Manager) Rollback(ctx context.Context, req RollbackRequest) (*RollbackResult, error) {
	if !req.Confirm {
		return &RollbackResult{
			Refused:       true,
			RefusalReason: "rollback is destructive; set confirm to proceed",
		}, nil
	}

	snap, err := m.resolveSnapshot(req.SnapshotID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(req.FilePaths))
	for _, path := range req.FilePaths {
		rel, err := m.relPath(path)
		if err != nil {
			return nil, err
		}
		wanted[rel] = true
	}

	result := &RollbackResult{SnapshotID: snap.ID}
	snapDir := filepath.Join(m.backupRoot, snap.ID)
	for _, file := range snap.Files {
		if len(wanted) > 0 && !wanted[file.RelPath] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := RestoreOutcome{RelPath: file.RelPath}
		src := filepath.Join(snapDir, file.RelPath)
		dst := filepath.Join(m.projectRoot, file.RelPath)
		if err := fsutil.CopyFile(src, dst, 0o644); err != nil {
			outcome.Error = err.Error()
			log.Warnf("backup: restore %s from %s failed: %v", file.RelPath, snap.ID, err)
		} else {
			outcome.Restored = true
			result.RestoredCount++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	log.Infof("backup: rollback from %s restored %d files", snap.ID, result.RestoredCount)
	return result, nil
}

// resolveSnapshot returns the snapshot with the given id, or the latest when
// id is empty.
func (m *Manager) resolveSnapshot(id string) (*Snapshot, error) {
	if id != "" {
		snap, err := m.readManifest(id)
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot %s", ErrNoBackupsFound, id)
		}
		return snap, nil
	}
	snaps, err := m.ListSnapshots()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNoBackupsFound
	}
	return &snaps[len(snaps)-1], nil
}

func (m *Manager) readManifest(id string) (*Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(m.backupRoot, id, manifestName))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &snap, nil
}

// relPath normalizes a project file path to its root-relative form and rejects
// paths outside the project root.
func (m *Manager) relPath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.projectRoot, path)
	}
	root, err := filepath.Abs(m.projectRoot)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the project root", path)
	}
	return rel, nil
}
