package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ridgeway-transit/opscore/headway"
	"github.com/ridgeway-transit/opscore/headwaylog"
)

type headwayResponse struct {
	Events       []headway.HeadwayEvent `json:"events"`
	VehicleNames map[int]string         `json:"vehicle_names"`
}

func (s *Server) vehicleNames() map[int]string {
	out := make(map[int]string)
	for _, v := range s.shared.AllVehicles() {
		out[v.VehicleID] = v.Name
	}
	return out
}

// GetHeadway handles GET /api/headway?start&end&route_ids&stop_ids: a
// range query over the day-partitioned CSV log plus a vehicle-id->name
// lookup for display.
func (s *Server) GetHeadway(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()
	start := parseTimeParam(q.Get("start"), now.Add(-24*time.Hour))
	end := parseTimeParam(q.Get("end"), now)

	events, err := s.headway.Query(start, end, splitCSVParam(q.Get("route_ids")), splitCSVParam(q.Get("stop_ids")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read headway log")
		return
	}
	writeJSON(w, http.StatusOK, headwayResponse{Events: events, VehicleNames: s.vehicleNames()})
}

// ClearHeadway handles POST /v1/headway/clear. The router mounts this
// behind auth.RequireAuth; it deletes every day-partitioned headway file.
func (s *Server) ClearHeadway(w http.ResponseWriter, r *http.Request) {
	if err := s.headway.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear headway log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// GetHeadwayExport handles GET /api/headway/export?...: pairs each
// arrival with its matching departure FIFO within each (route, stop,
// vehicle) group and renders one CSV row per pair (or per unpaired side),
// with display names resolved against the current fused state.
func (s *Server) GetHeadwayExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()
	start := parseTimeParam(q.Get("start"), now.Add(-24*time.Hour))
	end := parseTimeParam(q.Get("end"), now)
	headwayType := headwaylog.HeadwayType(q.Get("headway_type"))
	if headwayType != headwaylog.HeadwayDepartureArrival {
		headwayType = headwaylog.HeadwayArrivalArrival
	}

	names := s.vehicleNames()
	lookup := headwaylog.ExportLookup{
		RouteName: func(routeID string) string {
			rid, err := strconv.Atoi(routeID)
			if err != nil {
				return ""
			}
			name, _ := s.shared.RouteName(rid)
			return name
		},
		StopName: func(stopID string) string {
			if stop, ok := s.shared.Stops().ByStopID(stopID); ok {
				return stop.Name
			}
			return ""
		},
		VehicleName: func(vid int) string { return names[vid] },
	}

	body, err := s.headway.Export(start, end, splitCSVParam(q.Get("route_ids")), splitCSVParam(q.Get("stop_ids")), headwayType, time.Local, lookup)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build headway export")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\"headway_export.csv\"")
	_, _ = w.Write(body)
}
