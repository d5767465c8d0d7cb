package blocks

import "time"

// Trip is a collapsed per-vehicle (block_label, start, end) window, built
// from one or more raw block-group rows.
type Trip struct {
	BlockLabel  string // canonical, possibly interlined, e.g. "[20]/[10]"
	StartTs     time.Time
	EndTs       time.Time
	VehicleID   int
	VehicleName string
	RouteID     int
	RouteName   string
	RouteColor  string
}

// Contains reports whether t falls in [StartTs, EndTs).
func (tr Trip) Contains(now time.Time) bool {
	return !now.Before(tr.StartTs) && now.Before(tr.EndTs)
}

// DriverShift is one parsed entry from the driver-shift feed.
type DriverShift struct {
	PositionName string // raw position key, e.g. "[01]", "[21]/[16] AM", "OnDemand Driver"
	DriverName   string
	StartTs      time.Time
	EndTs        time.Time
	ColorID      int
}

// Active reports whether now falls in [StartTs, EndTs) and the shift is
// not a no-show (color_id 9).
func (d DriverShift) Active(now time.Time) bool {
	if d.ColorID == 9 {
		return false
	}
	return !now.Before(d.StartTs) && now.Before(d.EndTs)
}

// DriverInfo is one active driver entry attached to a resolved block,
// ordered ascending by start time.
type DriverInfo struct {
	Name         string `json:"name"`
	StartTsMs    int64  `json:"start_ts_ms"`
	EndTsMs      int64  `json:"end_ts_ms"`
	StartLabel   string `json:"start_label"`
	EndLabel     string `json:"end_label"`
	ColorID      int    `json:"color_id,omitempty"`
	PositionName string `json:"position_name,omitempty"`
	Period       string `json:"period,omitempty"`
}

// VehicleDriverEntry is the per-vehicle resolver output.
type VehicleDriverEntry struct {
	VehicleID   int          `json:"vehicle_id"`
	Block       string       `json:"block"`
	Drivers     []DriverInfo `json:"drivers"`
	VehicleName string       `json:"vehicle_name,omitempty"`
}

// cachedAssignment is the per-vehicle block cache the resolver persists
// across ticks, in memory only: an entry is overwritten whenever a
// resolution selects a sub-block with active drivers, and all entries are
// lost on restart.
type cachedAssignment struct {
	BlockNumber  string
	PositionName string
	ShiftEndTs   time.Time
}
