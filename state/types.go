// Package state defines the fused data model and the single
// mutex-guarded struct that the fusion worker writes and every request
// handler reads from.
package state

import "time"

// Route is a transit route with its decoded, speed-capped polyline.
type Route struct {
	RouteID             int
	Description         string
	InfoText            string
	Color               string
	EncodedPolyline     string
	Polyline            []Point
	CumulativeDistances  []float64
	TotalLengthM        float64
	SegmentSpeedCapsMps []float64
	SegmentRoadNames    []string
}

// Point mirrors geo.Point without importing geo from state, keeping this
// package dependency-light; fusion converts between the two.
type Point struct {
	Lat float64
	Lon float64
}

// Name returns the human-facing route name: description plus an info-text
// suffix in parentheses, when info text is present.
func (r Route) Name() string {
	if r.InfoText == "" {
		return r.Description
	}
	return r.Description + " (" + r.InfoText + ")"
}

// VehicleRaw is a single AVL position record as received from the poller,
// before fusion.
type VehicleRaw struct {
	VehicleID         int
	Name              string
	RouteID           *int
	Lat               float64
	Lon               float64
	HeadingDeg        float64
	GroundSpeedMps    float64
	ProviderTimestamp time.Time
	FetchedAt         time.Time
}

// AgeS is how stale this fix was at FetchedAt.
func (v VehicleRaw) AgeS() float64 {
	return v.FetchedAt.Sub(v.ProviderTimestamp).Seconds()
}

// VehicleFused is a raw vehicle enriched with derived routing fields.
type VehicleFused struct {
	VehicleRaw

	ArcLengthM        float64
	SegmentIndex      int
	DirectionSign     int
	EMASpeedMps       float64
	AlongRouteSpeedMps float64
	IsStale           bool
	IsVeryStale       bool

	Block       string
	VehicleName string
}

// Capacity is a vehicle occupancy reading.
type Capacity struct {
	VehicleID        int
	Capacity         int
	CurrentOccupation int
	Percentage       float64
}

// StopEstimate is one upcoming-stop ETA for a vehicle.
type StopEstimate struct {
	VehicleID int
	StopID    string
	ETASec    int
}

// Bubble is a circular geofence belonging to an ApproachSet, radius clamped
// to [5,200] meters by upstream.LoadApproachSets.
type Bubble struct {
	Lat     float64
	Lon     float64
	RadiusM float64
	Order   int
}

// ApproachSet is an ordered list of Bubbles modeling one approach corridor
// into a Stop.
type ApproachSet struct {
	Name    string
	Bubbles []Bubble
}

// MaxOrder returns the highest bubble order in the set, or 0 if empty.
func (a ApproachSet) MaxOrder() int {
	max := 0
	for _, b := range a.Bubbles {
		if b.Order > max {
			max = b.Order
		}
	}
	return max
}

// Stop is a transit stop, possibly merged from multiple raw stop records
// sharing a physical_address_id.
type Stop struct {
	StopID            string
	PhysicalAddressID  string
	Lat               float64
	Lon               float64
	Name              string
	ServesRouteIDs    map[string]struct{}
	ApproachSets      []ApproachSet
}

// ServesRoute reports whether this stop lists rid among its serving routes.
// An empty ServesRouteIDs set is treated as "serves everything" (no route
// filter configured for this stop).
func (s Stop) ServesRoute(rid string) bool {
	if len(s.ServesRouteIDs) == 0 {
		return true
	}
	_, ok := s.ServesRouteIDs[rid]
	return ok
}

// MergeStops merges raw stops sharing a non-empty PhysicalAddressID into a
// single Stop: serves_route_ids union,
// approach_sets concatenated and deduplicated by name. Stops with no
// physical_address_id pass through unmerged.
func MergeStops(raw []Stop) []Stop {
	byAddr := make(map[string]int) // physical_address_id -> index into merged
	merged := make([]Stop, 0, len(raw))

	for _, s := range raw {
		if s.PhysicalAddressID == "" {
			merged = append(merged, cloneStop(s))
			continue
		}
		if idx, ok := byAddr[s.PhysicalAddressID]; ok {
			m := &merged[idx]
			for rid := range s.ServesRouteIDs {
				m.ServesRouteIDs[rid] = struct{}{}
			}
			m.ApproachSets = dedupApproachSets(append(m.ApproachSets, s.ApproachSets...))
			continue
		}
		merged = append(merged, cloneStop(s))
		byAddr[s.PhysicalAddressID] = len(merged) - 1
	}
	return merged
}

func cloneStop(s Stop) Stop {
	ids := make(map[string]struct{}, len(s.ServesRouteIDs))
	for k := range s.ServesRouteIDs {
		ids[k] = struct{}{}
	}
	sets := make([]ApproachSet, len(s.ApproachSets))
	copy(sets, s.ApproachSets)
	s.ServesRouteIDs = ids
	s.ApproachSets = sets
	return s
}

func dedupApproachSets(sets []ApproachSet) []ApproachSet {
	seen := make(map[string]bool, len(sets))
	out := make([]ApproachSet, 0, len(sets))
	for _, s := range sets {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, s)
	}
	return out
}

// StopIndex provides O(1) lookup of a merged Stop by either stop_id or
// physical_address_id.
type StopIndex struct {
	byStopID map[string]Stop
	byAddrID map[string]Stop
}

// NewStopIndex builds a StopIndex from already-merged stops.
func NewStopIndex(stops []Stop) *StopIndex {
	idx := &StopIndex{
		byStopID: make(map[string]Stop, len(stops)),
		byAddrID: make(map[string]Stop, len(stops)),
	}
	for _, s := range stops {
		idx.byStopID[s.StopID] = s
		if s.PhysicalAddressID != "" {
			idx.byAddrID[s.PhysicalAddressID] = s
		}
	}
	return idx
}

// ByStopID looks a Stop up by its stop_id.
func (idx *StopIndex) ByStopID(id string) (Stop, bool) {
	s, ok := idx.byStopID[id]
	return s, ok
}

// ByAddressID looks a Stop up by its physical_address_id.
func (idx *StopIndex) ByAddressID(id string) (Stop, bool) {
	s, ok := idx.byAddrID[id]
	return s, ok
}

// All returns every indexed stop.
func (idx *StopIndex) All() []Stop {
	out := make([]Stop, 0, len(idx.byStopID))
	for _, s := range idx.byStopID {
		out = append(out, s)
	}
	return out
}
