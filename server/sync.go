package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"

	"github.com/ridgeway-transit/opscore/persist"
)

// syncableFiles is the collaborator-owned file allowlist this endpoint
// may replicate: the core never lets /sync write arbitrary
// paths, only the named collaborator snapshots it doesn't itself own.
var syncableFiles = map[string]bool{
	"sent_alert_ids.json":   true,
	"push_subscriptions.json": true,
	"system_notices.json":  true,
	"tickets.json":         true,
	"eink_block_layout.json": true,
	"config.json":          true,
}

// PostSync handles POST /sync (shared secret): replicates a named
// collaborator-owned persisted file to this instance's data directories.
// Query parameter "name" selects the file; the request
// body is written verbatim.
func (s *Server) PostSync(w http.ResponseWriter, r *http.Request) {
	if s.cfg.SyncSecret == "" {
		writeError(w, http.StatusForbidden, "sync disabled")
		return
	}
	secret := r.Header.Get("X-Sync-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.SyncSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid sync secret")
		return
	}

	name := filepath.Base(r.URL.Query().Get("name"))
	if !syncableFiles[name] {
		writeError(w, http.StatusBadRequest, "unknown sync target")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "sync payload is not valid JSON")
		return
	}
	if err := persist.WriteJSONAll(s.cfg.DataDirs, name, payload, s.log); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist synced file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"synced": true})
}
