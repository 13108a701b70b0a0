// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/forgelabs/mcpsmith/internal/fsutil"
)

// settingsDocument is the on-disk shape of the settings file. The top-level
// object leaves room for future sections next to the server map; Upsert
// patches the document in place so sections owned by other tools survive.
type settingsDocument struct {
	Servers map[string]ServerDefinition `json:"servers"`
}

// FileStore keeps server definitions in one JSON settings document, written
// atomically. An fsnotify watcher refreshes the in-memory map when an external
// collaborator rewrites the file.
type FileStore struct {
	path string

	mu      sync.RWMutex
	servers map[string]ServerDefinition
	// raw is the last document as read or written, patched on Upsert.
	raw []byte

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore loads (or initializes) the settings document at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		servers: make(map[string]ServerDefinition),
		done:    make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Watch starts the fsnotify refresh loop. Call Close to stop it.
func (s *FileStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	// Watch the directory, not the file: atomic rename replaces the inode.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("settings watcher add %s: %w", dir, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					log.Warnf("registry: settings reload failed: %v", err)
				} else {
					log.Debugf("registry: settings reloaded from %s", s.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("registry: settings watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher, if started.
func (s *FileStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *FileStore) reload() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings %s: %w", s.path, err)
	}
	var doc settingsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	if doc.Servers == nil {
		doc.Servers = make(map[string]ServerDefinition)
	}
	s.mu.Lock()
	s.servers = doc.Servers
	s.raw = raw
	s.mu.Unlock()
	return nil
}

// Upsert stores the definition and persists the document atomically. The
// definition is patched into the existing document so sections owned by other
// tools (dashboards, editors) are preserved verbatim.
func (s *FileStore) Upsert(name string, def ServerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defJSON, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	base := s.raw
	if len(base) == 0 {
		base = []byte(`{"servers":{}}`)
	}
	updated, err := sjson.SetRawBytes(base, "servers."+escapePathKey(name), defJSON)
	if err != nil {
		return fmt.Errorf("patch settings: %w", err)
	}
	pretty := []byte(gjson.GetBytes(updated, "@pretty").Raw)
	if err := fsutil.SecureWrite(s.path, pretty, &fsutil.SecureWriteOptions{Permissions: 0o644}); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	s.raw = pretty
	s.servers[name] = def
	return nil
}

// escapePathKey escapes characters that would otherwise act as JSON path
// syntax in a server name.
func escapePathKey(k string) string {
	return strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(k)
}

// Load returns a copy of all definitions.
func (s *FileStore) Load() (map[string]ServerDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ServerDefinition, len(s.servers))
	for k, v := range s.servers {
		out[k] = v
	}
	return out, nil
}

// Get returns one definition by name.
func (s *FileStore) Get(name string) (ServerDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.servers[name]
	return def, ok
}
