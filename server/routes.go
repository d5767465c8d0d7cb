package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type routeSummary struct {
	RouteID      int     `json:"route_id"`
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	TotalLengthM float64 `json:"total_length_m"`
	VehicleCount int     `json:"vehicle_count"`
}

// ListRoutes handles GET /v1/routes: active routes with lengths and
// vehicle counts.
func (s *Server) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.shared.Routes()
	out := make([]routeSummary, 0, len(routes))
	for _, rt := range routes {
		out = append(out, routeSummary{
			RouteID:      rt.RouteID,
			Name:         rt.Name(),
			Color:        rt.Color,
			TotalLengthM: rt.TotalLengthM,
			VehicleCount: len(s.shared.VehiclesForRoute(rt.RouteID)),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func routeIDParam(r *http.Request) (int, bool) {
	rid, err := strconv.Atoi(chi.URLParam(r, "rid"))
	return rid, err == nil
}

// GetRoute handles GET /v1/routes/{rid}: route metadata.
func (s *Server) GetRoute(w http.ResponseWriter, r *http.Request) {
	rid, ok := routeIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid route id")
		return
	}
	rt, ok := s.shared.Route(rid)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}
	writeJSON(w, http.StatusOK, routeSummary{
		RouteID:      rt.RouteID,
		Name:         rt.Name(),
		Color:        rt.Color,
		TotalLengthM: rt.TotalLengthM,
		VehicleCount: len(s.shared.VehiclesForRoute(rt.RouteID)),
	})
}

// GetRouteShape handles GET /v1/routes/{rid}/shape: the encoded polyline
// and its per-segment speed caps/road names.
func (s *Server) GetRouteShape(w http.ResponseWriter, r *http.Request) {
	rid, ok := routeIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid route id")
		return
	}
	rt, ok := s.shared.Route(rid)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"route_id":         rt.RouteID,
		"encoded_polyline": rt.EncodedPolyline,
		"total_length_m":   rt.TotalLengthM,
		"speed_caps_mps":   rt.SegmentSpeedCapsMps,
		"road_names":       rt.SegmentRoadNames,
	})
}

// GetRouteVehiclesRaw handles GET /v1/routes/{rid}/vehicles_raw: the
// fused vehicles currently attested on a route.
func (s *Server) GetRouteVehiclesRaw(w http.ResponseWriter, r *http.Request) {
	rid, ok := routeIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid route id")
		return
	}
	writeJSON(w, http.StatusOK, s.shared.VehiclesForRoute(rid))
}
