package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ridgeway-transit/opscore/config"
)

func newSyncTestServer(t *testing.T, secret string) (*Server, string) {
	t.Helper()
	srv, _ := newTestServer(t)
	srv.cfg = &config.Config{DataDirs: srv.cfg.DataDirs, SyncSecret: secret}
	return srv, srv.cfg.DataDirs[0]
}

func TestPostSyncWritesAllowlistedFile(t *testing.T) {
	srv, dir := newSyncTestServer(t, "s3cret")

	body := strings.NewReader(`{"hello":"world"}`)
	req := httptest.NewRequest(http.MethodPost, "/sync?name=system_notices.json", body)
	req.Header.Set("X-Sync-Secret", "s3cret")
	rec := httptest.NewRecorder()
	srv.PostSync(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "system_notices.json")); err != nil {
		t.Fatalf("expected synced file to exist: %v", err)
	}
}

func TestPostSyncRejectsBadSecret(t *testing.T) {
	srv, _ := newSyncTestServer(t, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/sync?name=system_notices.json", strings.NewReader(`{}`))
	req.Header.Set("X-Sync-Secret", "wrong")
	rec := httptest.NewRecorder()
	srv.PostSync(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPostSyncRejectsUnknownTarget(t *testing.T) {
	srv, _ := newSyncTestServer(t, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/sync?name=../../etc/passwd", strings.NewReader(`{}`))
	req.Header.Set("X-Sync-Secret", "s3cret")
	rec := httptest.NewRecorder()
	srv.PostSync(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostSyncDisabledWithoutSecret(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sync?name=system_notices.json", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.PostSync(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
