package headway

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/state"
)

// arrivalDepartureKey is the (route_id, stop_id) pair used for headway
// lookups; an empty RouteID is the (null, stop_id) fallback key.
type arrivalDepartureKey struct {
	RouteID string
	StopID  string
}

// vehicleStopKey additionally scopes by vehicle, used for the departure's
// symmetric (vid, stop_id, *) copy.
type vehicleStopKey struct {
	VehicleID int
	StopID    string
	RouteID   string
}

// Sink persists emitted events and answers the storage-layer fallback of
// headway computation, backed by the day-partitioned CSV store.
type Sink interface {
	Append(e HeadwayEvent) error
	LatestArrival(routeID, stopID string, before time.Time) (time.Time, bool)
	LatestDeparture(routeID, stopID string, before time.Time) (time.Time, bool)
}

// RouteNameFunc looks up a human-facing route name by route_id.
type RouteNameFunc func(routeID string) string

// BlockFunc looks up the current block for a vehicle, used when a
// snapshot's own Block hint is empty.
type BlockFunc func(vehicleID int) string

// Tracker is the per-process headway state machine. One
// Tracker instance owns all bubble-progress state across every vehicle.
type Tracker struct {
	mu sync.Mutex

	stops     []state.Stop
	stopIndex *state.StopIndex

	sink      Sink
	routeName RouteNameFunc
	blockOf   BlockFunc
	log       zerolog.Logger

	states map[trackKey]*bubbleProgressState

	lastArrival      map[arrivalDepartureKey]time.Time
	lastDeparture    map[arrivalDepartureKey]time.Time
	lastVehicleArrival map[vehicleStopKey]time.Time

	prevByVehicle map[int]Snapshot // for speed derivation

	diag []diagEntry
}

// NewTracker constructs an empty Tracker. stops should already be merged
// (state.MergeStops) before being passed to UpdateStops.
func NewTracker(sink Sink, routeName RouteNameFunc, blockOf BlockFunc, log zerolog.Logger) *Tracker {
	return &Tracker{
		sink:               sink,
		routeName:          routeName,
		blockOf:            blockOf,
		log:                log,
		states:             make(map[trackKey]*bubbleProgressState),
		lastArrival:        make(map[arrivalDepartureKey]time.Time),
		lastDeparture:      make(map[arrivalDepartureKey]time.Time),
		lastVehicleArrival: make(map[vehicleStopKey]time.Time),
		prevByVehicle:      make(map[int]Snapshot),
	}
}

// UpdateStops atomically replaces the tracker's stop/approach-set
// catalog.
func (t *Tracker) UpdateStops(stops []state.Stop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops = stops
	t.stopIndex = state.NewStopIndex(stops)
}

// ProcessSnapshots runs one fusion tick's worth of vehicle snapshots
// through the bubble state machine, returning
// every event emitted this batch. Events are also appended to the sink.
func (t *Tracker) ProcessSnapshots(snapshots []Snapshot, now time.Time) []HeadwayEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepStale(now)

	dedup := make(map[int]bool, len(snapshots)) // vehicle_id already processed this batch
	emittedThisStop := make(map[string]struct{ arrival, departure bool })

	var events []HeadwayEvent

	for _, snap := range snapshots {
		if dedup[snap.VehicleID] {
			continue
		}
		dedup[snap.VehicleID] = true

		if snap.Lat == 0 && snap.Lon == 0 {
			continue
		}
		snap.Timestamp = snap.Timestamp.UTC()

		speed, hasSpeed := t.speedFor(snap)
		t.prevByVehicle[snap.VehicleID] = snap

		for _, sa := range t.candidateApproachSets(snap) {
			ev := emittedThisStop[sa.stop.StopID]
			newEvents := t.processOne(snap, sa, speed, hasSpeed, now, &ev)
			emittedThisStop[sa.stop.StopID] = ev
			events = append(events, newEvents...)
		}
	}

	for _, e := range events {
		if t.sink != nil {
			if err := t.sink.Append(e); err != nil {
				t.log.Warn().Err(err).Str("stop_id", e.StopID).Msg("headway: failed to persist event")
			}
		}
	}

	return events
}

// stopApproach pairs a stop with one of its approach sets for iteration.
// setIdx is the set's position within its own stop's ApproachSets slice,
// stable across calls regardless of how many other stops are tracked, so
// it is safe to use as part of a trackKey.
type stopApproach struct {
	stop   state.Stop
	set    state.ApproachSet
	setIdx int
}

// candidateApproachSets returns every (stop, approach_set) pair whose
// serving routes include the snapshot's route.
func (t *Tracker) candidateApproachSets(snap Snapshot) []stopApproach {
	var out []stopApproach
	for _, s := range t.stops {
		if len(s.ApproachSets) == 0 {
			continue
		}
		if !s.ServesRoute(snap.RouteID) {
			continue
		}
		for i, set := range s.ApproachSets {
			out = append(out, stopApproach{stop: s, set: set, setIdx: i})
		}
	}
	return out
}

func (t *Tracker) speedFor(snap Snapshot) (float64, bool) {
	prev, ok := t.prevByVehicle[snap.VehicleID]
	if !ok {
		return 0, false
	}
	dt := snap.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}
	d := geo.HaversineM(geo.Point{Lat: prev.Lat, Lon: prev.Lon}, geo.Point{Lat: snap.Lat, Lon: snap.Lon})
	return d / dt, true
}

// processOne runs the per-approach-set bubble progression for one
// snapshot, returning any events emitted and updating stopEmitted to
// enforce the one-arrival-one-departure-per-stop-per-cycle rule.
func (t *Tracker) processOne(snap Snapshot, sa stopApproach, speed float64, hasSpeed bool, now time.Time, stopEmitted *struct{ arrival, departure bool }) []HeadwayEvent {
	key := trackKey{vehicleID: snap.VehicleID, stopID: sa.stop.StopID, approachIdx: sa.setIdx}
	maxOrder := sa.set.MaxOrder()

	bubblesIn := make(map[int]bool)
	for _, b := range sa.set.Bubbles {
		d := geo.HaversineM(geo.Point{Lat: snap.Lat, Lon: snap.Lon}, geo.Point{Lat: b.Lat, Lon: b.Lon})
		if d <= b.RadiusM {
			bubblesIn[b.Order] = true
		}
	}

	st, exists := t.states[key]
	var events []HeadwayEvent

	if len(bubblesIn) > 0 {
		if !exists {
			if !bubblesIn[1] {
				return nil // must enter from bubble 1
			}
			finalBubble := sa.set.Bubbles[0]
			for _, b := range sa.set.Bubbles {
				if b.Order == maxOrder {
					finalBubble = b
				}
			}
			st = &bubbleProgressState{
				routeID:              snap.RouteID,
				enteredAt:            snap.Timestamp,
				lastSeen:             snap.Timestamp,
				highestBubbleReached: 1,
				nextExpectedOrder:    2,
				finalBubbleLat:       finalBubble.Lat,
				finalBubbleLon:       finalBubble.Lon,
			}
			t.states[key] = st
			t.logDiag(now, snap.VehicleID, sa.stop.StopID, "entered")
		} else {
			st.lastSeen = snap.Timestamp
			for bubblesIn[st.nextExpectedOrder] && st.nextExpectedOrder <= maxOrder {
				st.highestBubbleReached = st.nextExpectedOrder
				st.nextExpectedOrder++
				t.logDiag(now, snap.VehicleID, sa.stop.StopID, "progressed")
			}
		}

		inFinal := bubblesIn[maxOrder] && st.highestBubbleReached == maxOrder
		if inFinal && !st.inFinalBubble {
			st.inFinalBubble = true
			st.enteredFinalAt = snap.Timestamp
			t.logDiag(now, snap.VehicleID, sa.stop.StopID, "entered_final")
		}

		if st.inFinalBubble && inFinal && hasSpeed && speed <= StopSpeedThresholdMps {
			if !st.stoppedInFinal && !stopEmitted.arrival {
				st.stoppedInFinal = true
				st.arrivalLogged = true
				st.arrivalTime = snap.Timestamp
				stopEmitted.arrival = true
				events = append(events, t.emitArrival(snap, sa, st, ArrivalStopped, now))
			}
		}

		if st.inFinalBubble && !inFinal {
			// Transitioned out of final while still in some bubble.
			if !st.arrivalLogged && !stopEmitted.arrival {
				st.arrivalLogged = true
				st.arrivalTime = snap.Timestamp
				stopEmitted.arrival = true
				events = append(events, t.emitArrival(snap, sa, st, ArrivalPassthrough, now))
			}
			if !st.departureLogged && !stopEmitted.departure {
				st.departureLogged = true
				stopEmitted.departure = true
				events = append(events, t.emitDeparture(snap, sa, st, now))
			}
			st.inFinalBubble = false
		}
		return events
	}

	// bubblesIn is empty.
	if exists {
		if st.inFinalBubble {
			if !st.arrivalLogged && !stopEmitted.arrival {
				st.arrivalLogged = true
				st.arrivalTime = snap.Timestamp
				stopEmitted.arrival = true
				events = append(events, t.emitArrival(snap, sa, st, ArrivalPassthrough, now))
			}
			if !st.departureLogged && !stopEmitted.departure {
				st.departureLogged = true
				stopEmitted.departure = true
				events = append(events, t.emitDeparture(snap, sa, st, now))
			}
			st.inFinalBubble = false
		}

		// Retain the state across brief GPS drift out of the bubble:
		// keep it while logging is still pending or the
		// vehicle remains within the abandonment radius of the final
		// bubble's centre.
		distToFinal := geo.HaversineM(geo.Point{Lat: snap.Lat, Lon: snap.Lon}, geo.Point{Lat: st.finalBubbleLat, Lon: st.finalBubbleLon})
		pending := !st.arrivalLogged || !st.departureLogged
		if !pending && distToFinal > ApproachAbandonmentDistanceM {
			delete(t.states, key)
			t.logDiag(now, snap.VehicleID, sa.stop.StopID, "abandoned")
		}
	}
	return events
}

func (t *Tracker) emitArrival(snap Snapshot, sa stopApproach, st *bubbleProgressState, at ArrivalType, now time.Time) HeadwayEvent {
	k1 := arrivalDepartureKey{RouteID: snap.RouteID, StopID: sa.stop.StopID}
	k0 := arrivalDepartureKey{RouteID: "", StopID: sa.stop.StopID}

	var headwayAA, headwayDA *float64

	if prevArr, ok := t.resolveArrival(k1, k0, snap.Timestamp); ok {
		s := snap.Timestamp.Sub(prevArr).Seconds()
		if s < 0 {
			s = 0
		}
		headwayAA = &s
	}
	if prevDep, ok := t.resolveDeparture(k1, k0, snap.Timestamp); ok {
		s := snap.Timestamp.Sub(prevDep).Seconds()
		if s < 0 {
			s = 0
		}
		headwayDA = &s
	}

	t.lastArrival[k1] = snap.Timestamp
	t.lastArrival[k0] = snap.Timestamp
	t.lastVehicleArrival[vehicleStopKey{VehicleID: snap.VehicleID, StopID: sa.stop.StopID, RouteID: snap.RouteID}] = snap.Timestamp

	return t.buildEvent(snap, sa, EventArrival, at, headwayAA, headwayDA, nil)
}

func (t *Tracker) emitDeparture(snap Snapshot, sa stopApproach, st *bubbleProgressState, now time.Time) HeadwayEvent {
	k1 := arrivalDepartureKey{RouteID: snap.RouteID, StopID: sa.stop.StopID}
	k0 := arrivalDepartureKey{RouteID: "", StopID: sa.stop.StopID}

	t.lastDeparture[k1] = snap.Timestamp
	t.lastDeparture[k0] = snap.Timestamp

	for k := range t.lastVehicleArrival {
		if k.VehicleID == snap.VehicleID && k.StopID == sa.stop.StopID {
			t.lastVehicleArrival[k] = snap.Timestamp
		}
	}

	var dwell *float64
	if !st.arrivalTime.IsZero() {
		d := snap.Timestamp.Sub(st.arrivalTime).Seconds()
		if d < 0 {
			d = 0
		}
		dwell = &d
	}

	return t.buildEvent(snap, sa, EventDeparture, "", nil, nil, dwell)
}

// resolveArrival walks K1 then K0 in the in-memory map, falling back to
// the storage-layer lookup for today's latest event.
func (t *Tracker) resolveArrival(k1, k0 arrivalDepartureKey, before time.Time) (time.Time, bool) {
	if ts, ok := t.lastArrival[k1]; ok {
		return ts, true
	}
	if ts, ok := t.lastArrival[k0]; ok {
		return ts, true
	}
	if t.sink == nil {
		return time.Time{}, false
	}
	if ts, ok := t.sink.LatestArrival(k1.RouteID, k1.StopID, before); ok {
		return ts, true
	}
	return t.sink.LatestArrival("", k0.StopID, before)
}

func (t *Tracker) resolveDeparture(k1, k0 arrivalDepartureKey, before time.Time) (time.Time, bool) {
	if ts, ok := t.lastDeparture[k1]; ok {
		return ts, true
	}
	if ts, ok := t.lastDeparture[k0]; ok {
		return ts, true
	}
	if t.sink == nil {
		return time.Time{}, false
	}
	if ts, ok := t.sink.LatestDeparture(k1.RouteID, k1.StopID, before); ok {
		return ts, true
	}
	return t.sink.LatestDeparture("", k0.StopID, before)
}

func (t *Tracker) buildEvent(snap Snapshot, sa stopApproach, et EventType, at ArrivalType, headwayAA, headwayDA, dwell *float64) HeadwayEvent {
	block := snap.Block
	if block == "" && t.blockOf != nil {
		block = t.blockOf(snap.VehicleID)
	}
	routeName := ""
	if t.routeName != nil {
		routeName = t.routeName(snap.RouteID)
	}

	return HeadwayEvent{
		Timestamp:                snap.Timestamp,
		RouteID:                  snap.RouteID,
		StopID:                   sa.stop.StopID,
		VehicleID:                snap.VehicleID,
		VehicleName:              snap.VehicleName,
		EventType:                et,
		HeadwayArrivalArrivalS:   headwayAA,
		HeadwayDepartureArrivalS: headwayDA,
		DwellS:                   dwell,
		RouteName:                routeName,
		AddressID:                sa.stop.PhysicalAddressID,
		StopName:                 sa.stop.Name,
		Block:                    block,
		ArrivalType:              at,
	}
}

// sweepStale drops any tracked state not seen within
// BubbleProgressStaleSeconds. Caller must
// hold t.mu.
func (t *Tracker) sweepStale(now time.Time) {
	for k, st := range t.states {
		if now.Sub(st.lastSeen).Seconds() > BubbleProgressStaleSeconds {
			delete(t.states, k)
		}
	}
}

func (t *Tracker) logDiag(now time.Time, vehicleID int, stopID, action string) {
	t.diag = append(t.diag, diagEntry{At: now, Vehicle: vehicleID, StopID: stopID, Action: action})
	if len(t.diag) > diagnosticRingCap {
		t.diag = t.diag[len(t.diag)-diagnosticRingCap:]
	}
}

// Diagnostics returns a copy of the recent bubble-activation ring, newest
// last.
func (t *Tracker) Diagnostics() []diagEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]diagEntry, len(t.diag))
	copy(out, t.diag)
	return out
}

// ActiveStateCount reports how many (vehicle, stop, approach_set) states
// are currently tracked, for health/diagnostic reporting.
func (t *Tracker) ActiveStateCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

