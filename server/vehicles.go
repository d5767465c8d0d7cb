package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ridgeway-transit/opscore/persist"
	"github.com/ridgeway-transit/opscore/state"
	"github.com/ridgeway-transit/opscore/vehlog"
)

type vehicleView struct {
	state.VehicleFused
	RouteName     string              `json:"route_name,omitempty"`
	Capacity      *state.Capacity     `json:"capacity,omitempty"`
	StopEstimates []state.StopEstimate `json:"stop_estimates,omitempty"`
	Block         string              `json:"block,omitempty"`
}

func (s *Server) decorate(v state.VehicleFused) vehicleView {
	out := vehicleView{VehicleFused: v}
	if v.RouteID != nil {
		if name, ok := s.shared.RouteName(*v.RouteID); ok {
			out.RouteName = name
		}
	}
	if c, ok := s.shared.Capacity(v.VehicleID); ok {
		out.Capacity = &c
	}
	out.StopEstimates = s.shared.StopEstimates(v.VehicleID)
	if block, ok := s.shared.Block(v.VehicleID); ok {
		out.Block = block
	}
	return out
}

// ListVehicles handles GET /v1/vehicles: every fused vehicle across every
// active route, decorated with capacity, ETAs, and block.
func (s *Server) ListVehicles(w http.ResponseWriter, r *http.Request) {
	raw := s.shared.AllVehicles()
	out := make([]vehicleView, 0, len(raw))
	for _, v := range raw {
		out = append(out, s.decorate(v))
	}
	writeJSON(w, http.StatusOK, out)
}

type vehicleDropdownEntry struct {
	VehicleID int    `json:"vehicle_id"`
	Name      string `json:"name"`
	RouteID   *int   `json:"route_id,omitempty"`
	RouteName string `json:"route_name,omitempty"`
}

// ListVehiclesDropdown handles GET /v1/vehicles_dropdown: a minimal
// id/name/route roster for UI pickers.
func (s *Server) ListVehiclesDropdown(w http.ResponseWriter, r *http.Request) {
	raw := s.shared.AllVehicles()
	out := make([]vehicleDropdownEntry, 0, len(raw))
	for _, v := range raw {
		e := vehicleDropdownEntry{VehicleID: v.VehicleID, Name: v.Name, RouteID: v.RouteID}
		if v.RouteID != nil {
			if name, ok := s.shared.RouteName(*v.RouteID); ok {
				e.RouteName = name
			}
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

type headingRecordView struct {
	Heading   float64 `json:"heading"`
	UpdatedAt int64   `json:"updated_at"`
}

// GetVehicleHeadings handles GET /v1/vehicle_headings: the persisted
// last-known-heading table, read
// directly off disk since it outlives any single fusion tick.
func (s *Server) GetVehicleHeadings(w http.ResponseWriter, r *http.Request) {
	var headings map[string]headingRecordView
	_, err := persist.ReadJSONFirst(s.cfg.DataDirs, "vehicle_headings.json", &headings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read vehicle headings")
		return
	}
	if headings == nil {
		headings = map[string]headingRecordView{}
	}
	writeJSON(w, http.StatusOK, headings)
}

// GetVehicleLog handles GET /v1/vehicle_log?vehicle_id&start&end: the
// rolling position-history replay for one vehicle. Mounted behind
// auth.RequireAuth by the router.
func (s *Server) GetVehicleLog(w http.ResponseWriter, r *http.Request) {
	if s.vlog == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"points": []vehlog.Point{}})
		return
	}
	q := r.URL.Query()
	vid, err := strconv.Atoi(q.Get("vehicle_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vehicle_id")
		return
	}
	now := time.Now().UTC()
	start := parseTimeParam(q.Get("start"), now.Add(-time.Hour))
	end := parseTimeParam(q.Get("end"), now)

	points := s.vlog.History(vid, start, end)
	if points == nil {
		points = []vehlog.Point{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle_id": vid,
		"points":     points,
	})
}
