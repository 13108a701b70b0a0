// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	servers map[string]ServerDefinition
	fail    error
}

func newMemStore() *memStore {
	return &memStore{servers: make(map[string]ServerDefinition)}
}

func (m *memStore) Upsert(name string, def ServerDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.servers[name] = def
	return nil
}

func (m *memStore) Load() (map[string]ServerDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ServerDefinition, len(m.servers))
	for k, v := range m.servers {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Get(name string) (ServerDefinition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.servers[name]
	return def, ok
}

func TestRegisterResolvesRelativeWorkingDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "widget"), 0o755))

	store := newMemStore()
	notified := make(chan string, 1)
	r := NewRegistrar(store, root, func(name string) { notified <- name })

	def, err := r.Register(context.Background(), RegisterRequest{
		Name:       "widget",
		Command:    "node",
		Args:       []string{"server.js"},
		WorkingDir: "widget",
		Enabled:    true,
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "widget"), def.WorkingDir)
	require.True(t, def.Enabled)
	require.False(t, def.RegisteredAt.IsZero())

	stored, ok := store.Get("widget")
	require.True(t, ok)
	require.Equal(t, "node", stored.Command)

	select {
	case name := <-notified:
		require.Equal(t, "widget", name)
	case <-time.After(time.Second):
		t.Fatal("reload notifier not fired")
	}
}

func TestRegisterMissingDirectory(t *testing.T) {
	r := NewRegistrar(newMemStore(), t.TempDir(), nil)
	_, err := r.Register(context.Background(), RegisterRequest{
		Name:       "ghost",
		Command:    "node",
		WorkingDir: "does-not-exist",
	})
	var notFound *DirectoryNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRegisterRejectsEscapingWorkingDir(t *testing.T) {
	r := NewRegistrar(newMemStore(), t.TempDir(), nil)
	_, err := r.Register(context.Background(), RegisterRequest{
		Name:       "sneaky",
		Command:    "node",
		WorkingDir: "../outside",
	})
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistrar(newMemStore(), t.TempDir(), nil)

	_, err := r.Register(context.Background(), RegisterRequest{Command: "node"})
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)

	_, err = r.Register(context.Background(), RegisterRequest{Name: "x"})
	require.ErrorAs(t, err, &regErr)
}

func TestRegisterStoreRejection(t *testing.T) {
	root := t.TempDir()
	store := newMemStore()
	store.fail = errors.New("disk full")
	r := NewRegistrar(store, root, nil)

	_, err := r.Register(context.Background(), RegisterRequest{
		Name:       "widget",
		Command:    "node",
		WorkingDir: ".",
	})
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	require.ErrorContains(t, err, "disk full")
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings", "servers.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	def := ServerDefinition{Name: "widget", Command: "node", WorkingDir: "/tmp", Enabled: true}
	require.NoError(t, store.Upsert("widget", def))

	// A fresh store reads the persisted document.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, ok := reopened.Get("widget")
	require.True(t, ok)
	require.Equal(t, "node", got.Command)

	all, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestFileStoreWatchReloadsOnExternalRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Watch())
	defer store.Close()

	// Simulate a dashboard rewriting the settings document.
	doc := `{"servers": {"external": {"name": "external", "command": "python", "working_dir": "/tmp", "enabled": true}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	require.Eventually(t, func() bool {
		_, ok := store.Get("external")
		return ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestFileStoreUpsertPreservesForeignSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	doc := `{"dashboard": {"theme": "dark"}, "servers": {}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Upsert("widget", ServerDefinition{Name: "widget", Command: "node", WorkingDir: "/tmp"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"theme"`, "sections owned by other tools survive an upsert")
	require.Contains(t, string(raw), `"widget"`)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	all, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path)
	require.Error(t, err)
}
