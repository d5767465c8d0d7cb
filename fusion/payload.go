package fusion

import (
	"github.com/ridgeway-transit/opscore/blocks"
	"github.com/ridgeway-transit/opscore/state"
)

// vehiclePayload is one entry of the pre-materialized testmap vehicle
// payload: a fused vehicle joined with its capacity,
// stop estimates, route name, and resolved block/driver assignment, ready
// to serialize without touching the shared-state lock again.
type vehiclePayload struct {
	VehicleID          int                  `json:"vehicle_id"`
	Name               string               `json:"name"`
	RouteID            int                  `json:"route_id"`
	RouteName          string               `json:"route_name"`
	Lat                float64              `json:"lat"`
	Lon                float64              `json:"lon"`
	HeadingDeg         float64              `json:"heading_deg"`
	ArcLengthM         float64              `json:"arc_length_m"`
	SegmentIndex       int                  `json:"segment_index"`
	DirectionSign      int                  `json:"direction_sign"`
	EMASpeedMps        float64              `json:"ema_speed_mps"`
	AlongRouteSpeedMps float64              `json:"along_route_speed_mps"`
	IsStale            bool                 `json:"is_stale"`
	IsVeryStale        bool                 `json:"is_very_stale"`
	Capacity           *state.Capacity      `json:"capacity,omitempty"`
	StopEstimates      []state.StopEstimate `json:"stop_estimates,omitempty"`
	Block              string               `json:"block,omitempty"`
	Drivers            []blocks.DriverInfo  `json:"drivers,omitempty"`
}

type testmapPayload struct {
	Vehicles []vehiclePayload `json:"vehicles"`
}

func buildTestmapPayload(
	fused map[int]state.VehicleFused,
	capacities map[int]state.Capacity,
	estimates map[int][]state.StopEstimate,
	routeIDToName map[int]string,
	driverEntries map[int]blocks.VehicleDriverEntry,
) testmapPayload {
	out := make([]vehiclePayload, 0, len(fused))
	for vid, fv := range fused {
		if fv.RouteID == nil {
			continue
		}
		vp := vehiclePayload{
			VehicleID:          vid,
			Name:               fv.Name,
			RouteID:            *fv.RouteID,
			RouteName:          routeIDToName[*fv.RouteID],
			Lat:                fv.Lat,
			Lon:                fv.Lon,
			HeadingDeg:         fv.HeadingDeg,
			ArcLengthM:         fv.ArcLengthM,
			SegmentIndex:       fv.SegmentIndex,
			DirectionSign:      fv.DirectionSign,
			EMASpeedMps:        fv.EMASpeedMps,
			AlongRouteSpeedMps: fv.AlongRouteSpeedMps,
			IsStale:            fv.IsStale,
			IsVeryStale:        fv.IsVeryStale,
			StopEstimates:      estimates[vid],
		}
		if c, ok := capacities[vid]; ok {
			vp.Capacity = &c
		}
		if entry, ok := driverEntries[vid]; ok {
			vp.Block = entry.Block
			vp.Drivers = entry.Drivers
		}
		out = append(out, vp)
	}
	return testmapPayload{Vehicles: out}
}
