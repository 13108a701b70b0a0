// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forgelabs/mcpsmith/internal/config"
	"github.com/forgelabs/mcpsmith/internal/hub"
	"github.com/forgelabs/mcpsmith/internal/logging"
)

func newTestServer(t *testing.T, managementKey string) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	base := t.TempDir()
	cfg, err := config.LoadConfig(filepath.Join(base, "absent.yaml"))
	require.NoError(t, err)
	cfg.WorkspaceRoot = filepath.Join(base, "workspace")
	cfg.BackupRoot = filepath.Join(base, "backups")
	cfg.SettingsFile = filepath.Join(base, "settings", "servers.json")
	cfg.ManagementKey = managementKey
	require.NoError(t, os.MkdirAll(cfg.WorkspaceRoot, 0o755))

	service, err := hub.NewService(cfg, filepath.Join(base, "project"))
	require.NoError(t, err)
	t.Cleanup(func() { service.Close() })

	srv := NewServer(cfg, service)
	return srv, srv.buildRouter()
}

func doJSON(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthzIsOpen(t *testing.T) {
	_, router := newTestServer(t, "secret-key")
	w := doJSON(router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
}

func TestManagementKeyEnforced(t *testing.T) {
	_, router := newTestServer(t, "secret-key")

	w := doJSON(router, http.MethodGet, "/v1/providers/status", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/providers/status", "",
		map[string]string{"X-Management-Key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/providers/status", "",
		map[string]string{"X-Management-Key": "secret-key"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestManagementKeyBcryptHash(t *testing.T) {
	hashed, err := config.HashManagementKey("s3cret")
	require.NoError(t, err)
	_, router := newTestServer(t, hashed)

	w := doJSON(router, http.MethodGet, "/v1/providers/status", "",
		map[string]string{"X-Management-Key": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/providers/status", "",
		map[string]string{"X-Management-Key": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	_, router := newTestServer(t, "")
	w := doJSON(router, http.MethodGet, "/healthz", "", nil)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = doJSON(router, http.MethodGet, "/healthz", "",
		map[string]string{"X-Request-ID": "fixed-id"})
	require.Equal(t, "fixed-id", w.Header().Get("X-Request-ID"))
}

func TestRequestIDFlowsIntoLogs(t *testing.T) {
	logger := log.StandardLogger()
	var buf bytes.Buffer
	oldOut := logger.Out
	oldFormatter := logger.Formatter
	logger.SetOutput(&buf)
	logger.SetFormatter(&logging.LogFormatter{})
	t.Cleanup(func() {
		logger.SetOutput(oldOut)
		logger.SetFormatter(oldFormatter)
	})

	_, router := newTestServer(t, "")
	doJSON(router, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "feedbeef"})
	require.Contains(t, buf.String(), "[feedbeef]", "the formatter's request id slot is filled")
}

func TestRegisterServerEndpoint(t *testing.T) {
	srv, router := newTestServer(t, "")
	require.NoError(t, os.MkdirAll(filepath.Join(srv.cfg.WorkspaceRoot, "widget"), 0o755))

	body := `{"name": "widget", "command": "node", "working_dir": "widget", "enabled": true}`
	w := doJSON(router, http.MethodPost, "/v1/ops/register-server", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, gjson.Get(w.Body.String(), "success").Bool())
	require.Equal(t, "widget", gjson.Get(w.Body.String(), "data.name").String())
}

func TestRegisterServerDomainFailureStaysInEnvelope(t *testing.T) {
	_, router := newTestServer(t, "")
	body := `{"name": "ghost", "command": "node", "working_dir": "missing"}`
	w := doJSON(router, http.MethodPost, "/v1/ops/register-server", body, nil)
	require.Equal(t, http.StatusOK, w.Code, "domain failures ride in the envelope, not the status code")
	require.False(t, gjson.Get(w.Body.String(), "success").Bool())
	require.Equal(t, "directory_not_found", gjson.Get(w.Body.String(), "error_kind").String())
}

func TestBindErrorsAreBadRequests(t *testing.T) {
	_, router := newTestServer(t, "")
	w := doJSON(router, http.MethodPost, "/v1/ops/register-server", `{"command": "node"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/v1/ops/clone-and-build", `not json`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSmokeRunEndpointUnknownServer(t *testing.T) {
	_, router := newTestServer(t, "")
	w := doJSON(router, http.MethodPost, "/v1/ops/smoke-run", `{"server_name": "ghost"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "server_not_found", gjson.Get(w.Body.String(), "error_kind").String())
}

func TestGenerateCompletionEndpointNoProviders(t *testing.T) {
	_, router := newTestServer(t, "")
	body := `{"messages": [{"role": "user", "content": "hi"}]}`
	w := doJSON(router, http.MethodPost, "/v1/ops/generate-completion", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no_providers_configured", gjson.Get(w.Body.String(), "error_kind").String())
}

func TestRollbackEndpointRefusal(t *testing.T) {
	_, router := newTestServer(t, "")
	w := doJSON(router, http.MethodPost, "/v1/ops/rollback-modifications", `{}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, gjson.Get(w.Body.String(), "success").Bool())
	require.True(t, gjson.Get(w.Body.String(), "data.refused").Bool())
}

func TestValidateChangesEndpoint(t *testing.T) {
	_, router := newTestServer(t, "")
	w := doJSON(router, http.MethodPost, "/v1/ops/validate-changes", `{"kinds": ["syntax"]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, gjson.Get(w.Body.String(), "success").Bool())
}
