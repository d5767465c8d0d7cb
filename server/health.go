package server

import "net/http"

// Health handles GET /v1/health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.shared.Health())
}
