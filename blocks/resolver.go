// Package blocks implements the interlined-block split, route→block
// preference tables, and time-window driver selection that turn raw
// block-group and driver-shift feeds into per-vehicle driver entries.
package blocks

import (
	"sort"
	"strings"
	"time"

	"github.com/ridgeway-transit/opscore/upstream"
)

// routeBlockRule is one row of the authoritative route→blocks table.
// Route matching is a case-insensitive substring test against the route
// name/keyword.
type routeBlockRule struct {
	keyword   string
	allowed   []string
	preferred []string
}

var routeBlockTable = []routeBlockRule{
	{keyword: "green", allowed: []string{"01", "02"}},
	{keyword: "night pilot", allowed: []string{"03", "04"}},
	{keyword: "orange", allowed: []string{"05", "06", "07", "08"}},
	{keyword: "gold", allowed: []string{"09", "10", "11", "12"}},
	{keyword: "yellow", allowed: []string{"09", "10", "11", "12"}},
	{keyword: "silver", allowed: []string{"13", "14"}},
	{keyword: "blue", allowed: []string{"15", "16", "17", "18", "20", "21", "22", "23", "24", "25", "26"}, preferred: []string{"15", "16", "17", "18"}},
	{keyword: "red", allowed: []string{"20", "21", "22", "23", "24", "25", "26"}},
}

// RouteBlockSet returns the allowed and preferred sub-block sets for a
// route name, matching the first keyword found as a case-insensitive
// substring. An unmatched route name returns two nil slices.
func RouteBlockSet(routeName string) (allowed, preferred []string) {
	lower := strings.ToLower(routeName)
	for _, rule := range routeBlockTable {
		if strings.Contains(lower, rule.keyword) {
			return rule.allowed, rule.preferred
		}
	}
	return nil, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// BuildTrips parses raw block-group rows into per-vehicle Trip windows,
// canonicalizing interlined labels via Canonicalize.
func BuildTrips(rows []upstream.BlockGroupWire) []Trip {
	out := make([]Trip, 0, len(rows))
	for _, r := range rows {
		if r.VehicleID == nil {
			continue
		}
		start, err := upstream.ParseMSAjax(r.StartTimestamp)
		if err != nil {
			continue
		}
		end, err := upstream.ParseMSAjax(r.EndTimestamp)
		if err != nil {
			continue
		}
		rid := 0
		if r.RouteID != nil {
			rid = *r.RouteID
		}
		out = append(out, Trip{
			BlockLabel:  Canonicalize(r.BlockID),
			StartTs:     start,
			EndTs:       end,
			VehicleID:   *r.VehicleID,
			VehicleName: r.VehicleName,
			RouteID:     rid,
			RouteName:   r.RouteName,
			RouteColor:  r.RouteColor,
		})
	}
	return out
}

// DriverIndex groups parsed driver shifts by 2-digit block number (or an
// OnDemand special key) for active-driver lookup.
type DriverIndex struct {
	byBlock map[string][]DriverShift
}

// NewDriverIndex groups shifts by the block number(s) found in their
// PositionName via Split, so an interlined position ("[21]/[16] AM")
// indexes under both "21" and "16".
func NewDriverIndex(shifts []DriverShift) *DriverIndex {
	idx := &DriverIndex{byBlock: make(map[string][]DriverShift)}
	for _, s := range shifts {
		keys := Split(s.PositionName)
		if len(keys) == 0 {
			// Non-numeric position (OnDemand Driver, OnDemand EB, ...):
			// index by the raw trimmed position name.
			keys = []string{strings.TrimSpace(s.PositionName)}
		}
		for _, k := range keys {
			idx.byBlock[k] = append(idx.byBlock[k], s)
		}
	}
	for k := range idx.byBlock {
		sort.Slice(idx.byBlock[k], func(i, j int) bool {
			return idx.byBlock[k][i].StartTs.Before(idx.byBlock[k][j].StartTs)
		})
	}
	return idx
}

// ActiveDrivers returns the shifts active at now for blockNumber, sorted
// ascending by start time, skipping no-shows.
func (idx *DriverIndex) ActiveDrivers(blockNumber string, now time.Time) []DriverShift {
	var out []DriverShift
	for _, s := range idx.byBlock[blockNumber] {
		if s.Active(now) {
			out = append(out, s)
		}
	}
	return out
}

// Resolver resolves, for each vehicle, its current block and active
// drivers, maintaining the per-vehicle cache
// fallback across ticks.
type Resolver struct {
	cache map[int]cachedAssignment // vehicle_id -> last resolved assignment
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[int]cachedAssignment)}
}

// Resolve selects one vehicle's current block and active drivers:
// trips is
// that vehicle's collapsed Trip windows (from BuildTrips, filtered to this
// vehicle_id), currentRouteName is the vehicle's present route assignment
// (used for route-preference sub-block selection), and now is the
// resolution instant.
func (r *Resolver) Resolve(vehicleID int, vehicleName string, trips []Trip, currentRouteName string, drivers *DriverIndex, now time.Time) (VehicleDriverEntry, bool) {
	trip, ok := r.selectTrip(vehicleID, trips, drivers, now)
	if !ok {
		return VehicleDriverEntry{}, false
	}

	subBlocks := Split(trip.BlockLabel)
	if len(subBlocks) == 0 {
		subBlocks = []string{trip.BlockLabel}
	}

	// Sub-blocks with at least one active driver.
	var live []blockCandidate
	for _, sb := range subBlocks {
		active := drivers.ActiveDrivers(sb, now)
		if len(active) > 0 {
			live = append(live, blockCandidate{block: sb, drivers: active})
		}
	}

	allowed, preferred := RouteBlockSet(currentRouteName)

	chosenBlock := ""
	var chosenDrivers []DriverShift
	position := ""

	switch {
	case len(live) == 0:
		// Cache fallback: the last resolved assignment, if still valid.
		if cached, ok := r.cache[vehicleID]; ok && cached.ShiftEndTs.After(now) && contains(subBlocks, cached.BlockNumber) {
			chosenBlock = cached.BlockNumber
			position = cached.PositionName
		} else {
			return VehicleDriverEntry{}, false
		}
	case len(live) == 1:
		chosenBlock, chosenDrivers = live[0].block, live[0].drivers
	default:
		// Step 4: preferred set first, then allowed set, then cache, then
		// most-recent driver start.
		if c, ok := firstIn(live, preferred); ok {
			chosenBlock, chosenDrivers = c.block, c.drivers
		} else if c, ok := firstIn(live, allowed); ok {
			chosenBlock, chosenDrivers = c.block, c.drivers
		} else if cached, ok := r.cache[vehicleID]; ok && cached.ShiftEndTs.After(now) {
			if c, ok := firstExact(live, cached.BlockNumber); ok {
				chosenBlock, chosenDrivers = c.block, c.drivers
			}
		}
		if chosenBlock == "" {
			best := live[0]
			for _, c := range live[1:] {
				if c.drivers[0].StartTs.After(best.drivers[0].StartTs) {
					best = c
				}
			}
			chosenBlock, chosenDrivers = best.block, best.drivers
		}
	}

	// The shift's position name is the block label dispatch actually uses;
	// the raw trip label is only the fallback when no shift resolved.
	if len(chosenDrivers) > 0 {
		position = chosenDrivers[0].PositionName
	}
	blockLabel := trip.BlockLabel
	if position != "" {
		blockLabel = position
	}

	entry := VehicleDriverEntry{
		VehicleID:   vehicleID,
		Block:       blockLabel,
		VehicleName: vehicleName,
		Drivers:     dedupDrivers(chosenDrivers, chosenBlock),
	}

	if len(chosenDrivers) > 0 {
		maxEnd := chosenDrivers[0].EndTs
		for _, d := range chosenDrivers[1:] {
			if d.EndTs.After(maxEnd) {
				maxEnd = d.EndTs
			}
		}
		r.cache[vehicleID] = cachedAssignment{BlockNumber: chosenBlock, PositionName: position, ShiftEndTs: maxEnd}
	}

	return entry, true
}

// selectTrip picks the trip containing now, or (if
// none) a trip with an active driver shift on one of its sub-blocks.
func (r *Resolver) selectTrip(vehicleID int, trips []Trip, drivers *DriverIndex, now time.Time) (Trip, bool) {
	for _, t := range trips {
		if t.Contains(now) {
			return t, true
		}
	}
	for _, t := range trips {
		for _, sb := range Split(t.BlockLabel) {
			if len(drivers.ActiveDrivers(sb, now)) > 0 {
				return t, true
			}
		}
	}
	return Trip{}, false
}

// blockCandidate is a sub-block with at least one active driver shift.
type blockCandidate struct {
	block   string
	drivers []DriverShift
}

func firstIn(live []blockCandidate, set []string) (blockCandidate, bool) {
	for _, s := range set {
		for _, c := range live {
			if c.block == s {
				return c, true
			}
		}
	}
	return blockCandidate{}, false
}

func firstExact(live []blockCandidate, block string) (blockCandidate, bool) {
	for _, c := range live {
		if c.block == block {
			return c, true
		}
	}
	return blockCandidate{}, false
}

func dedupDrivers(shifts []DriverShift, blockNumber string) []DriverInfo {
	seen := make(map[string]bool, len(shifts))
	out := make([]DriverInfo, 0, len(shifts))
	for _, s := range shifts {
		key := s.DriverName + "|" + s.StartTs.String() + "|" + s.EndTs.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, DriverInfo{
			Name:       s.DriverName,
			StartTsMs:  s.StartTs.UnixMilli(),
			EndTsMs:    s.EndTs.UnixMilli(),
			StartLabel: s.StartTs.Format("3:04 PM"),
			EndLabel:   s.EndTs.Format("3:04 PM"),
			ColorID:    s.ColorID,
			Period:     periodForBlock(blockNumber, s.StartTs.Hour()).String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTsMs < out[j].StartTsMs })
	return out
}
