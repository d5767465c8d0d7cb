package headway

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/state"
)

func testStop() state.Stop {
	return state.Stop{
		StopID:         "S1",
		Name:           "Main St",
		ServesRouteIDs: map[string]struct{}{"R1": {}},
		ApproachSets: []state.ApproachSet{
			{
				Name: "default",
				Bubbles: []state.Bubble{
					{Lat: 0.0, Lon: 0.0, RadiusM: 100, Order: 1},
					{Lat: 0.0001, Lon: 0.0001, RadiusM: 30, Order: 2},
				},
			},
		},
	}
}

func newTestTracker(stops []state.Stop) *Tracker {
	tr := NewTracker(nil, func(string) string { return "" }, func(int) string { return "" }, zerolog.Nop())
	tr.UpdateStops(stops)
	return tr
}

func snap(vid int, lat, lon float64, t time.Time) Snapshot {
	return Snapshot{VehicleID: vid, VehicleName: "Bus 1", Lat: lat, Lon: lon, RouteID: "R1", Timestamp: t}
}

// TestStoppedArrivalEmitsOneArrivalAndOneDeparture: a vehicle
// entering bubble 1, then dwelling in bubble 2 below the stop-speed
// threshold, emits exactly one stopped arrival and, on exit, one
// departure whose dwell_s matches the elapsed time between them.
func TestStoppedArrivalEmitsOneArrivalAndOneDeparture(t *testing.T) {
	tr := newTestTracker([]state.Stop{testStop()})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// outside
	tr.ProcessSnapshots([]Snapshot{snap(1, 1.0, 1.0, base)}, base)
	// bubble 1 only
	s2 := base.Add(10 * time.Second)
	tr.ProcessSnapshots([]Snapshot{snap(1, 0.0005, 0.0005, s2)}, s2)
	// first reading in bubble 2 (still moving in from bubble 1)
	s3 := s2.Add(10 * time.Second)
	events := tr.ProcessSnapshots([]Snapshot{snap(1, 0.0001, 0.0001, s3)}, s3)
	if len(events) != 0 {
		t.Fatalf("expected no arrival yet on first final-bubble reading, got %+v", events)
	}
	// dwelling at the same spot: speed collapses to 0, stop threshold met
	s3b := s3.Add(5 * time.Second)
	events = tr.ProcessSnapshots([]Snapshot{snap(1, 0.0001, 0.0001, s3b)}, s3b)
	if len(events) != 1 || events[0].EventType != EventArrival || events[0].ArrivalType != ArrivalStopped {
		t.Fatalf("expected one stopped arrival at s3b, got %+v", events)
	}
	arrivalTime := events[0].Timestamp

	// continues dwelling
	s4 := s3b.Add(5 * time.Second)
	events = tr.ProcessSnapshots([]Snapshot{snap(1, 0.0001, 0.0001, s4)}, s4)
	if len(events) != 0 {
		t.Fatalf("expected no events while dwelling, got %+v", events)
	}

	// departs
	s5 := s4.Add(10 * time.Second)
	events = tr.ProcessSnapshots([]Snapshot{snap(1, 1.0, 1.0, s5)}, s5)
	if len(events) != 1 || events[0].EventType != EventDeparture {
		t.Fatalf("expected one departure at s5, got %+v", events)
	}
	if events[0].DwellS == nil {
		t.Fatalf("expected dwell_s to be set")
	}
	wantDwell := events[0].Timestamp.Sub(arrivalTime).Seconds()
	if *events[0].DwellS != wantDwell {
		t.Errorf("dwell_s = %v, want %v", *events[0].DwellS, wantDwell)
	}
}

// TestPassthroughEmitsArrivalAndDepartureAtSameTimestamp: a
// vehicle that moves through the final bubble without ever dropping
// below the stop-speed threshold emits one passthrough arrival and one
// departure at the same exit timestamp (dwell 0).
func TestPassthroughEmitsArrivalAndDepartureAtSameTimestamp(t *testing.T) {
	tr := newTestTracker([]state.Stop{testStop()})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.ProcessSnapshots([]Snapshot{snap(2, 1.0, 1.0, base)}, base)
	// bubble 1 only (a 0,0 reading would be dropped as a missing fix)
	s2 := base.Add(1 * time.Second)
	tr.ProcessSnapshots([]Snapshot{snap(2, 0.0005, 0.0005, s2)}, s2)
	// moves fast through bubble 2
	s3 := s2.Add(1 * time.Second)
	tr.ProcessSnapshots([]Snapshot{snap(2, 0.0001, 0.0001, s3)}, s3)
	// exits
	s4 := s3.Add(1 * time.Second)
	events := tr.ProcessSnapshots([]Snapshot{snap(2, 1.0, 1.0, s4)}, s4)

	var sawArrival, sawDeparture bool
	for _, e := range events {
		if e.EventType == EventArrival {
			sawArrival = true
			if e.ArrivalType != ArrivalPassthrough {
				t.Errorf("expected passthrough arrival, got %v", e.ArrivalType)
			}
			if !e.Timestamp.Equal(s4) {
				t.Errorf("arrival timestamp = %v, want %v", e.Timestamp, s4)
			}
		}
		if e.EventType == EventDeparture {
			sawDeparture = true
			if e.DwellS == nil || *e.DwellS != 0 {
				t.Errorf("expected dwell_s=0, got %v", e.DwellS)
			}
		}
	}
	if !sawArrival || !sawDeparture {
		t.Fatalf("expected exactly one arrival and one departure, got %+v", events)
	}
}

func TestOrderEnforcementNoBubble1EntryNeverArrives(t *testing.T) {
	// Shrink bubble 1 so the bubble-2 centre (about 15.7 m from the
	// bubble-1 centre) lies outside it; with the default 100 m radius
	// bubble 2 sits wholly inside bubble 1.
	stop := testStop()
	stop.ApproachSets[0].Bubbles[0].RadiusM = 5
	tr := newTestTracker([]state.Stop{stop})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Jump straight into bubble 2 without ever being in bubble 1.
	events := tr.ProcessSnapshots([]Snapshot{snap(3, 0.0001, 0.0001, base)}, base)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	s2 := base.Add(5 * time.Second)
	events = tr.ProcessSnapshots([]Snapshot{snap(3, 0.0001, 0.0001, s2)}, s2)
	if len(events) != 0 {
		t.Fatalf("expected no events on continued dwell without bubble-1 entry, got %+v", events)
	}
}

func TestRouteMismatchSuppressesEvents(t *testing.T) {
	stop := testStop()
	stop.ServesRouteIDs = map[string]struct{}{"R2": {}}
	tr := newTestTracker([]state.Stop{stop})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.ProcessSnapshots([]Snapshot{snap(4, 0.0, 0.0, base)}, base)
	s2 := base.Add(5 * time.Second)
	events := tr.ProcessSnapshots([]Snapshot{snap(4, 0.0001, 0.0001, s2)}, s2)
	if len(events) != 0 {
		t.Fatalf("expected no events for route-mismatched stop, got %+v", events)
	}
}

func TestAtMostOnePerCyclePerStopAcrossApproachSets(t *testing.T) {
	stop := testStop()
	stop.ApproachSets = append(stop.ApproachSets, state.ApproachSet{
		Name: "alt",
		Bubbles: []state.Bubble{
			{Lat: 0.0, Lon: 0.0, RadiusM: 100, Order: 1},
			{Lat: 0.0001, Lon: 0.0001, RadiusM: 30, Order: 2},
		},
	})
	tr := newTestTracker([]state.Stop{stop})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.ProcessSnapshots([]Snapshot{snap(5, 1.0, 1.0, base)}, base)
	// bubble 1 only (a 0,0 reading would be dropped as a missing fix)
	s2 := base.Add(1 * time.Second)
	tr.ProcessSnapshots([]Snapshot{snap(5, 0.0005, 0.0005, s2)}, s2)
	// Both approach sets reach their final bubble together.
	s3 := s2.Add(1 * time.Second)
	tr.ProcessSnapshots([]Snapshot{snap(5, 0.0001, 0.0001, s3)}, s3)
	// Both exit in the same batch.
	s4 := s3.Add(1 * time.Second)
	events := tr.ProcessSnapshots([]Snapshot{snap(5, 1.0, 1.0, s4)}, s4)

	var arrivals, departures int
	for _, e := range events {
		switch e.EventType {
		case EventArrival:
			arrivals++
		case EventDeparture:
			departures++
		}
	}
	if arrivals != 1 || departures != 1 {
		t.Fatalf("expected exactly one arrival and one departure across both approach sets, got arrivals=%d departures=%d (%+v)", arrivals, departures, events)
	}
}
