package server

import (
	"net/http"
)

// GetTestmapTransloc handles GET /v1/testmap/transloc: the full
// pre-materialized snapshot (same payload published to the SSE vehicle
// stream), served as plain JSON for polling clients.
func (s *Server) GetTestmapTransloc(w http.ResponseWriter, r *http.Request) {
	s.writeTestmapJSON(w)
}

// GetTestmapTranslocVehicles handles GET /v1/testmap/transloc/vehicles:
// identical payload, kept as its own path for clients that split the
// vehicle feed from route/stop metadata.
func (s *Server) GetTestmapTranslocVehicles(w http.ResponseWriter, r *http.Request) {
	s.writeTestmapJSON(w)
}

func (s *Server) writeTestmapJSON(w http.ResponseWriter) {
	if s.testmapJSON == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"vehicles": []interface{}{}})
		return
	}
	body := s.testmapJSON()
	if body == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"vehicles": []interface{}{}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type testmapMetadata struct {
	RouteID      int     `json:"route_id"`
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	TotalLengthM float64 `json:"total_length_m"`
}

// GetTestmapMetadata handles GET /v1/testmap/transloc/metadata: active
// route metadata (name, color, length) the dashboard needs to draw the
// route list and polylines, independent of the vehicle feed's cadence.
func (s *Server) GetTestmapMetadata(w http.ResponseWriter, r *http.Request) {
	routes := s.shared.Routes()
	out := make([]testmapMetadata, 0, len(routes))
	for _, rt := range routes {
		out = append(out, testmapMetadata{
			RouteID:      rt.RouteID,
			Name:         rt.Name(),
			Color:        rt.Color,
			TotalLengthM: rt.TotalLengthM,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
