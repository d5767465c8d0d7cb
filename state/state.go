package state

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus is the body of GET /v1/health.
type HealthStatus struct {
	OK           bool      `json:"ok"`
	LastError    string    `json:"last_error,omitempty"`
	LastErrorTs  time.Time `json:"last_error_ts,omitempty"`
}

// Shared is the single mutex-guarded fused-state struct: the
// fusion tick is its sole writer, request handlers are readers that copy
// out before responding. Critical sections are kept short — all network
// I/O and polyline math happens before the lock is taken.
type Shared struct {
	mu sync.RWMutex

	routes         map[int]Route
	vehiclesByRoute map[int][]VehicleFused
	routeIDToName  map[int]string
	activeRouteIDs map[int]bool
	routeLastSeen  map[int]time.Time

	stops          *StopIndex
	capacities     map[int]Capacity
	stopEstimates  map[int][]StopEstimate

	vehicleToBlock map[int]string
	lastError      string
	lastErrorTs    time.Time
}

// NewShared returns an empty Shared state ready for the first fusion tick.
func NewShared() *Shared {
	return &Shared{
		routes:          make(map[int]Route),
		vehiclesByRoute: make(map[int][]VehicleFused),
		routeIDToName:   make(map[int]string),
		activeRouteIDs:  make(map[int]bool),
		routeLastSeen:   make(map[int]time.Time),
		stops:           NewStopIndex(nil),
		capacities:      make(map[int]Capacity),
		stopEstimates:   make(map[int][]StopEstimate),
		vehicleToBlock:  make(map[int]string),
	}
}

// FusionResult bundles everything one fusion tick produces; ApplyTick
// installs it atomically under the write lock.
type FusionResult struct {
	Routes          map[int]Route
	VehiclesByRoute map[int][]VehicleFused
	RouteIDToName   map[int]string
	ActiveRouteIDs  map[int]bool
	RouteLastSeen   map[int]time.Time
	Stops           *StopIndex
	Capacities      map[int]Capacity
	StopEstimates   map[int][]StopEstimate
	VehicleToBlock  map[int]string
}

// ApplyTick installs a FusionResult as the new fused state. It is the only
// mutating entry point besides RecordError/ClearError.
func (s *Shared) ApplyTick(r FusionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = r.Routes
	s.vehiclesByRoute = r.VehiclesByRoute
	s.routeIDToName = r.RouteIDToName
	s.activeRouteIDs = r.ActiveRouteIDs
	s.routeLastSeen = r.RouteLastSeen
	s.stops = r.Stops
	s.capacities = r.Capacities
	s.stopEstimates = r.StopEstimates
	s.vehicleToBlock = r.VehicleToBlock
}

// RecordError stamps the last-seen tick failure without touching any cached
// value.
func (s *Shared) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
	s.lastErrorTs = time.Now().UTC()
}

// ClearError wipes the last-error marker after a successful tick.
func (s *Shared) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// Health returns the current health snapshot.
func (s *Shared) Health() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return HealthStatus{
		OK:          s.lastError == "",
		LastError:   s.lastError,
		LastErrorTs: s.lastErrorTs,
	}
}

// Routes returns the active routes, ordered by route ID.
func (s *Shared) Routes() []Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Route, 0, len(s.routes))
	for rid := range s.routes {
		if s.activeRouteIDs[rid] {
			out = append(out, s.routes[rid])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteID < out[j].RouteID })
	return out
}

// Route looks up a single route by ID.
func (s *Shared) Route(rid int) (Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[rid]
	return r, ok
}

// VehiclesForRoute returns the fused vehicles currently attested on rid.
func (s *Shared) VehiclesForRoute(rid int) []VehicleFused {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.vehiclesByRoute[rid]
	out := make([]VehicleFused, len(src))
	copy(out, src)
	return out
}

// AllVehicles returns every fused vehicle across every active route.
func (s *Shared) AllVehicles() []VehicleFused {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []VehicleFused
	for _, vs := range s.vehiclesByRoute {
		out = append(out, vs...)
	}
	return out
}

// RouteName returns the joined route_id_to_name lookup.
func (s *Shared) RouteName(rid int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.routeIDToName[rid]
	return n, ok
}

// Capacity looks up a vehicle's occupancy reading.
func (s *Shared) Capacity(vid int) (Capacity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.capacities[vid]
	return c, ok
}

// StopEstimates returns the cached ETAs for a vehicle.
func (s *Shared) StopEstimates(vid int) []StopEstimate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.stopEstimates[vid]
	out := make([]StopEstimate, len(src))
	copy(out, src)
	return out
}

// Block returns the cached vehicle->block label.
func (s *Shared) Block(vid int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.vehicleToBlock[vid]
	return b, ok
}

// Stops returns the current merged stop index.
func (s *Shared) Stops() *StopIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stops
}
