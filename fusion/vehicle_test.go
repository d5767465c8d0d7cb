package fusion

import (
	"testing"
	"time"

	"github.com/ridgeway-transit/opscore/config"
	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/state"
)

func testEngine() *Engine {
	return &Engine{
		cfg: &config.Config{
			HeadingJitterM:         3.0,
			EMAAlpha:               0.4,
			MinSpeedFloorMps:       0,
			MaxSpeedCeilMps:        30,
			StaleFixS:              90 * time.Second,
			VehicleStaleThresholdS: 3600 * time.Second,
		},
	}
}

func straightRoute() state.Route {
	poly := []state.Point{{Lat: 40.0, Lon: -83.0}, {Lat: 40.01, Lon: -83.0}}
	pts := make([]geo.Point, len(poly))
	for i, p := range poly {
		pts[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}
	cum := geo.CumulativeDistances(pts)
	return state.Route{
		RouteID:             5,
		Polyline:            poly,
		CumulativeDistances: cum,
		TotalLengthM:        cum[len(cum)-1],
	}
}

func TestFuseVehicleFirstSightingIsFreshAndWithinRoute(t *testing.T) {
	e := testEngine()
	route := straightRoute()
	now := time.Now().UTC()

	raw := state.VehicleRaw{
		VehicleID:         101,
		Name:              "Bus 1",
		Lat:               40.001,
		Lon:               -83.0,
		GroundSpeedMps:    5,
		ProviderTimestamp: now,
		FetchedAt:         now,
	}

	fused := e.fuseVehicle(raw, route, state.VehicleFused{}, false, 0, false)

	if fused.IsStale || fused.IsVeryStale {
		t.Fatalf("expected a fresh fix to not be stale: %+v", fused)
	}
	if fused.ArcLengthM < 0 || fused.ArcLengthM > route.TotalLengthM {
		t.Fatalf("expected arc length within route bounds, got %f", fused.ArcLengthM)
	}
}

func TestFuseVehicleCarriesContinuityFromPriorTick(t *testing.T) {
	e := testEngine()
	route := straightRoute()
	now := time.Now().UTC()

	prev := state.VehicleFused{
		VehicleRaw: state.VehicleRaw{
			VehicleID:         101,
			Lat:               40.0,
			Lon:               -83.0,
			ProviderTimestamp: now.Add(-10 * time.Second),
		},
		ArcLengthM:    0,
		SegmentIndex:  0,
		DirectionSign: 1,
		EMASpeedMps:   4.0,
	}

	raw := state.VehicleRaw{
		VehicleID:         101,
		Lat:               40.001,
		Lon:               -83.0,
		GroundSpeedMps:    5,
		ProviderTimestamp: now,
		FetchedAt:         now,
	}

	fused := e.fuseVehicle(raw, route, prev, true, 0, false)

	if fused.ArcLengthM <= prev.ArcLengthM {
		t.Fatalf("expected forward progress along the route, got arc %f vs prior %f", fused.ArcLengthM, prev.ArcLengthM)
	}
	if fused.EMASpeedMps < e.cfg.MinSpeedFloorMps || fused.EMASpeedMps > e.cfg.MaxSpeedCeilMps {
		t.Fatalf("expected EMA speed clamped to configured bounds, got %f", fused.EMASpeedMps)
	}
}

func TestFuseVehicleFlagsStaleFix(t *testing.T) {
	e := testEngine()
	route := straightRoute()
	now := time.Now().UTC()

	raw := state.VehicleRaw{
		VehicleID:         101,
		Lat:               40.001,
		Lon:               -83.0,
		ProviderTimestamp: now.Add(-2 * time.Hour),
		FetchedAt:         now,
	}

	fused := e.fuseVehicle(raw, route, state.VehicleFused{}, false, 0, false)

	if !fused.IsStale || !fused.IsVeryStale {
		t.Fatalf("expected a two-hour-old fix to be flagged stale and very stale: %+v", fused)
	}
}

func TestDetermineHeadingFallsBackToPersisted(t *testing.T) {
	h := determineHeading(geo.Point{Lat: 40, Lon: -83}, state.VehicleFused{}, false, 3.0, 275.0, true)
	if h != 275.0 {
		t.Fatalf("expected persisted heading fallback, got %f", h)
	}
}

func TestDetermineHeadingDefaultsToZeroWithNoHistory(t *testing.T) {
	h := determineHeading(geo.Point{Lat: 40, Lon: -83}, state.VehicleFused{}, false, 3.0, 0, false)
	if h != 0 {
		t.Fatalf("expected zero heading with no prior or persisted value, got %f", h)
	}
}
