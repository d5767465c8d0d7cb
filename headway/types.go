// Package headway implements the per-vehicle approach-bubble state
// machine: it consumes fused-vehicle position snapshots, advances
// each tracked (vehicle, stop, approach_set) through its ordered bubbles,
// and emits arrival/departure events with headway and dwell times.
package headway

import "time"

const (
	// StopSpeedThresholdMps is the speed below which a vehicle in the
	// final bubble is considered stopped.
	StopSpeedThresholdMps = 0.5
	// ApproachAbandonmentDistanceM tolerates brief GPS drift out of the
	// final bubble before the state is dropped.
	ApproachAbandonmentDistanceM = 400.0
	// BubbleProgressStaleSeconds drops a tracked state that hasn't been
	// seen in this long.
	BubbleProgressStaleSeconds = 120.0
	// diagnosticRingCap bounds the activation-log ring.
	diagnosticRingCap = 100
)

// EventType is the kind of a HeadwayEvent.
type EventType string

const (
	EventArrival   EventType = "arrival"
	EventDeparture EventType = "departure"
)

// ArrivalType distinguishes a stopped arrival from a passthrough one.
type ArrivalType string

const (
	ArrivalStopped    ArrivalType = "stopped"
	ArrivalPassthrough ArrivalType = "passthrough"
)

// Snapshot is one fused-vehicle observation fed to the tracker each
// fusion tick.
type Snapshot struct {
	VehicleID   int
	VehicleName string
	Lat         float64
	Lon         float64
	RouteID     string
	Block       string
	Timestamp   time.Time // fusion-tick start, UTC; never an upstream timestamp
}

// HeadwayEvent is one immutable emitted event.
type HeadwayEvent struct {
	Timestamp                time.Time
	RouteID                  string
	StopID                   string
	VehicleID                int
	VehicleName              string
	EventType                EventType
	HeadwayArrivalArrivalS   *float64
	HeadwayDepartureArrivalS *float64
	DwellS                   *float64
	RouteName                string
	AddressID                string
	StopName                 string
	Block                    string
	ArrivalType              ArrivalType
}

// bubbleProgressState is one (vehicle, stop, approach_set_index) progress
// record.
type bubbleProgressState struct {
	routeID            string
	enteredAt          time.Time
	lastSeen           time.Time
	highestBubbleReached int
	nextExpectedOrder  int
	finalBubbleLat     float64
	finalBubbleLon     float64
	inFinalBubble      bool
	enteredFinalAt     time.Time
	stoppedInFinal     bool
	arrivalLogged      bool
	arrivalTime        time.Time
	departureLogged    bool
}

// trackKey identifies a tracked bubble-progress state.
type trackKey struct {
	vehicleID    int
	stopID       string
	approachIdx  int
}

// diagEntry is one bounded diagnostic ring entry.
type diagEntry struct {
	At      time.Time
	Vehicle int
	StopID  string
	Action  string // entered, progressed, entered_final, abandoned, ...
}
