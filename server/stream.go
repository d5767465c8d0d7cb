package server

import (
	"net/http"

	"github.com/ridgeway-transit/opscore/stream"
)

// StreamAPICalls handles GET /v1/stream/api_calls: the bounded replay of
// recent outbound upstream calls, then live events.
func (s *Server) StreamAPICalls(w http.ResponseWriter, r *http.Request) {
	stream.ServeSSE(w, r, s.apiCalls.Broadcaster, nil)
}

// StreamTestmapVehicles handles GET /v1/stream/testmap/vehicles: live
// fused-vehicle updates, preceded by one on-connect snapshot frame built
// from the current pre-materialized payload.
func (s *Server) StreamTestmapVehicles(w http.ResponseWriter, r *http.Request) {
	stream.ServeSSE(w, r, s.vehicles, func() []byte {
		if s.testmapJSON == nil {
			return nil
		}
		body := s.testmapJSON()
		if body == nil {
			return nil
		}
		return sseFrame(body)
	})
}
