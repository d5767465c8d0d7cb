package vehlog

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/state"
)

func fused(vid int, lat, lon float64) state.VehicleFused {
	return state.VehicleFused{VehicleRaw: state.VehicleRaw{VehicleID: vid, Lat: lat, Lon: lon}}
}

func TestObserveSkipsSubThresholdMoves(t *testing.T) {
	l := New(3.0, time.Hour, zerolog.Nop())
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	l.Observe(t0, []state.VehicleFused{fused(101, 40.0, -83.0)})
	// ~1m north of the first fix: below the 3m threshold.
	l.Observe(t0.Add(4*time.Second), []state.VehicleFused{fused(101, 40.00001, -83.0)})
	// ~110m north: well above it.
	l.Observe(t0.Add(8*time.Second), []state.VehicleFused{fused(101, 40.001, -83.0)})

	hist := l.History(101, t0.Add(-time.Minute), t0.Add(time.Minute))
	if len(hist) != 2 {
		t.Fatalf("expected 2 logged points (sub-threshold move dropped), got %d", len(hist))
	}
}

func TestObservePrunesBeyondRetention(t *testing.T) {
	l := New(0, 10*time.Second, zerolog.Nop())
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	l.Observe(t0, []state.VehicleFused{fused(101, 40.0, -83.0)})
	l.Observe(t0.Add(30*time.Second), []state.VehicleFused{fused(101, 40.001, -83.0)})

	hist := l.History(101, t0.Add(-time.Minute), t0.Add(time.Minute))
	if len(hist) != 1 {
		t.Fatalf("expected the first point pruned, got %d points", len(hist))
	}
	if !hist[0].Timestamp.Equal(t0.Add(30 * time.Second)) {
		t.Fatalf("surviving point has wrong timestamp: %v", hist[0].Timestamp)
	}
}

func TestHistoryFiltersByRange(t *testing.T) {
	l := New(0, time.Hour, zerolog.Nop())
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		l.Observe(t0.Add(time.Duration(i)*time.Minute), []state.VehicleFused{fused(101, 40.0+float64(i)*0.001, -83.0)})
	}

	hist := l.History(101, t0.Add(30*time.Second), t0.Add(90*time.Second))
	if len(hist) != 1 {
		t.Fatalf("expected exactly the middle point, got %d", len(hist))
	}

	if ids := l.VehicleIDs(); len(ids) != 1 || ids[0] != 101 {
		t.Fatalf("VehicleIDs = %v", ids)
	}
}
