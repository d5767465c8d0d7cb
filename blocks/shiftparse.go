package blocks

import (
	"strconv"
	"strings"
	"time"

	"github.com/ridgeway-transit/opscore/upstream"
)

// dateTimeLayouts are tried in order against "<date> <time>" strings built
// from the driver-shift feed's separate date/time fields.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 3:04 PM",
}

func parseDateTime(date, clock string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return time.Time{}, false
	}
	combined := date
	if clock != "" {
		combined = date + " " + clock
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, combined); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDuration accepts "HH:MM" or "HH:MM:SS" duration strings, the
// fallback used when a shift has no explicit end.
func parseDuration(s string) (time.Duration, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	sec := 0
	if len(parts) == 3 {
		sec, _ = strconv.Atoi(parts[2])
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, true
}

// ParseShifts converts the raw driver-shift feed into domain DriverShift
// values, falling back to START + DURATION when an explicit END is
// absent.
func ParseShifts(wire []upstream.AssignedShiftWire) []DriverShift {
	out := make([]DriverShift, 0, len(wire))
	for _, w := range wire {
		start, ok := parseDateTime(w.StartDate, w.StartTime)
		if !ok {
			continue
		}

		var end time.Time
		if w.EndDate != "" || w.EndTime != "" {
			endDate := w.EndDate
			if endDate == "" {
				endDate = w.StartDate
			}
			if e, ok := parseDateTime(endDate, w.EndTime); ok {
				end = e
			}
		}
		if end.IsZero() {
			if d, ok := parseDuration(w.Duration); ok {
				end = start.Add(d)
			} else {
				continue
			}
		}

		name := strings.TrimSpace(w.FirstName + " " + w.LastName)
		out = append(out, DriverShift{
			PositionName: strings.TrimSpace(w.PositionName),
			DriverName:   name,
			StartTs:      start,
			EndTs:        end,
			ColorID:      w.ColorID,
		})
	}
	return out
}

// NormalizeDriverName collapses whitespace and lowercases a driver name
// for OnDemand-to-shift matching.
func NormalizeDriverName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// onDemandPositions are the special driver-shift position keys carrying
// OnDemand paratransit coverage.
var onDemandPositions = []string{"OnDemand Driver", "OnDemand EB"}

// ResolveOnDemand matches each OnDemand position entry to an active shift
// under one of the OnDemand position keys by normalized driver name,
// emitting a VehicleDriverEntry keyed by the OnDemand vehicle id only when
// a match is found.
func ResolveOnDemand(positions []upstream.OnDemandPositionWire, shifts []DriverShift, now time.Time) []VehicleDriverEntry {
	byName := make(map[string][]DriverShift)
	for _, s := range shifts {
		for _, pos := range onDemandPositions {
			if s.PositionName == pos {
				key := NormalizeDriverName(s.DriverName)
				byName[key] = append(byName[key], s)
			}
		}
	}

	var out []VehicleDriverEntry
	for _, p := range positions {
		key := NormalizeDriverName(p.DriverName)
		for _, s := range byName[key] {
			if !s.Active(now) {
				continue
			}
			vid, err := strconv.Atoi(p.VehicleID)
			if err != nil {
				continue
			}
			out = append(out, VehicleDriverEntry{
				VehicleID:   vid,
				Block:       s.PositionName,
				VehicleName: p.CallName,
				Drivers: []DriverInfo{{
					Name:         s.DriverName,
					StartTsMs:    s.StartTs.UnixMilli(),
					EndTsMs:      s.EndTs.UnixMilli(),
					StartLabel:   s.StartTs.Format("3:04 PM"),
					EndLabel:     s.EndTs.Format("3:04 PM"),
					ColorID:      s.ColorID,
					PositionName: s.PositionName,
					Period:       "any",
				}},
			})
			break
		}
	}
	return out
}
