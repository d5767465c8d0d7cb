package server

import (
	"encoding/json"
	"net/http"

	"github.com/ridgeway-transit/opscore/auth"
)

type dispatcherAuthRequest struct {
	Password string `json:"password"`
}

// PostDispatcherAuth handles POST /api/dispatcher/auth:
// mints and sets the dispatcher session cookie on a matching password.
func (s *Server) PostDispatcherAuth(w http.ResponseWriter, r *http.Request) {
	var req dispatcherAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cookie, principal, ok := s.gate.Login(req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	auth.SetCookie(w, cookie, s.cfg.DispatchCookieMaxAge, s.cfg.DispatchCookieSecure)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":       principal.Label,
		"access_type": principal.AccessType,
	})
}

// GetDispatcherAuth handles GET /api/dispatcher/auth: reports whether the
// current request carries a valid dispatcher session.
func (s *Server) GetDispatcherAuth(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"label":         p.Label,
		"access_type":   p.AccessType,
	})
}

// PostDispatcherLogout handles POST /api/dispatcher/logout: expires the
// session cookie.
func (s *Server) PostDispatcherLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, s.cfg.DispatchCookieSecure)
	writeJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}
