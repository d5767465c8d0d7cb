package headwaylog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/ridgeway-transit/opscore/headway"
)

// HeadwayType selects which persisted headway figure an export row
// reports.
type HeadwayType string

const (
	HeadwayArrivalArrival   HeadwayType = "arrival_arrival"
	HeadwayDepartureArrival HeadwayType = "departure_arrival"
)

// ExportLookup resolves the human-facing names the CSV rows don't carry
// (the persisted schema is IDs-only; see store.go's headwaySecondsForRow
// note on the single-column headway design).
type ExportLookup struct {
	RouteName   func(routeID string) string
	StopName    func(stopID string) string
	VehicleName func(vehicleID int) string
}

// pairGroup is the (route_id, stop_id, vehicle_id) export grouping key.
// The persisted row schema carries no block column, so arrivals and
// departures are paired within this narrower key.
type pairGroup struct {
	RouteID   string
	StopID    string
	VehicleID int
}

// Export renders the headway CSV export: one row per
// paired (arrival, departure), FIFO-matched within each (route, stop,
// vehicle) group, with unpaired arrivals or departures still emitting a
// row with blank cells for the missing side.
func (s *Store) Export(start, end time.Time, routeIDs, stopIDs []string, headwayType HeadwayType, loc *time.Location, lookup ExportLookup) ([]byte, error) {
	events, err := s.Query(start, end, routeIDs, stopIDs)
	if err != nil {
		return nil, err
	}

	// The persisted row carries only the arrival-arrival headway, so the
	// departure-arrival figure is recomputed here: for each arrival, the
	// gap back to the latest earlier departure at the same (route, stop),
	// across all vehicles in the queried window.
	type routeStop struct{ RouteID, StopID string }
	departureTimes := make(map[routeStop][]time.Time)
	for _, e := range events {
		if e.EventType == headway.EventDeparture {
			k := routeStop{RouteID: e.RouteID, StopID: e.StopID}
			departureTimes[k] = append(departureTimes[k], e.Timestamp)
		}
	}
	for _, ts := range departureTimes {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	}

	arrivals := make(map[pairGroup][]pairedEvent)
	departures := make(map[pairGroup][]pairedEvent)
	for _, e := range events {
		g := pairGroup{RouteID: e.RouteID, StopID: e.StopID, VehicleID: e.VehicleID}
		pe := pairedEvent{ts: e.Timestamp, headwayAA: e.HeadwayArrivalArrivalS, headwayDA: e.HeadwayDepartureArrivalS, dwell: e.DwellS}
		switch e.EventType {
		case headway.EventArrival:
			if pe.headwayDA == nil {
				if prev, ok := latestBefore(departureTimes[routeStop{RouteID: e.RouteID, StopID: e.StopID}], e.Timestamp); ok {
					da := e.Timestamp.Sub(prev).Seconds()
					pe.headwayDA = &da
				}
			}
			arrivals[g] = append(arrivals[g], pe)
		case headway.EventDeparture:
			departures[g] = append(departures[g], pe)
		}
	}

	var groups []pairGroup
	seen := make(map[pairGroup]bool)
	for g := range arrivals {
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	for g := range departures {
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].RouteID != groups[j].RouteID {
			return groups[i].RouteID < groups[j].RouteID
		}
		if groups[i].StopID != groups[j].StopID {
			return groups[i].StopID < groups[j].StopID
		}
		return groups[i].VehicleID < groups[j].VehicleID
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"Route", "Arrival Date", "Stop", "Vehicle", "Arrival Time", "Departure Time", "Dwell", "Headway"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, g := range groups {
		pairs := fifoPair(arrivals[g], departures[g])
		routeName := g.RouteID
		if lookup.RouteName != nil {
			if n := lookup.RouteName(g.RouteID); n != "" {
				routeName = n
			}
		}
		stopName := g.StopID
		if lookup.StopName != nil {
			if n := lookup.StopName(g.StopID); n != "" {
				stopName = n
			}
		}
		vehicleName := fmt.Sprintf("%d", g.VehicleID)
		if lookup.VehicleName != nil {
			if n := lookup.VehicleName(g.VehicleID); n != "" {
				vehicleName = n
			}
		}

		for _, p := range pairs {
			row := exportRow(p, routeName, stopName, vehicleName, headwayType, loc)
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// latestBefore returns the last timestamp in sorted (ascending) ts that
// is strictly before t. Strictness keeps a passthrough's own same-instant
// departure from reading as a zero-second headway.
func latestBefore(ts []time.Time, t time.Time) (time.Time, bool) {
	idx := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(t) })
	if idx == 0 {
		return time.Time{}, false
	}
	return ts[idx-1], true
}

type pairedEvent struct {
	ts        time.Time
	headwayAA *float64
	headwayDA *float64
	dwell     *float64
}

type exportPair struct {
	arrival   *pairedEvent
	departure *pairedEvent
}

// fifoPair matches arrivals against departures within one group by
// chronological order: the i-th arrival pairs with the i-th
// departure when both exist; surplus entries on either side emit with a
// blank counterpart.
func fifoPair(arrivals, departures []pairedEvent) []exportPair {
	sort.Slice(arrivals, func(i, j int) bool { return arrivals[i].ts.Before(arrivals[j].ts) })
	sort.Slice(departures, func(i, j int) bool { return departures[i].ts.Before(departures[j].ts) })

	n := len(arrivals)
	if len(departures) > n {
		n = len(departures)
	}
	out := make([]exportPair, 0, n)
	for i := 0; i < n; i++ {
		var p exportPair
		if i < len(arrivals) {
			a := arrivals[i]
			p.arrival = &a
		}
		if i < len(departures) {
			d := departures[i]
			p.departure = &d
		}
		out = append(out, p)
	}
	return out
}

func exportRow(p exportPair, routeName, stopName, vehicleName string, headwayType HeadwayType, loc *time.Location) []string {
	row := make([]string, 8)
	row[0] = routeName
	row[2] = stopName
	row[3] = vehicleName

	var arrivalTs, departureTs time.Time
	if p.arrival != nil {
		arrivalTs = p.arrival.ts.In(loc)
		row[1] = arrivalTs.Format("01-02-2006")
		row[4] = arrivalTs.Format("3:04:05 PM")
	}
	if p.departure != nil {
		departureTs = p.departure.ts.In(loc)
		if row[1] == "" {
			row[1] = departureTs.Format("01-02-2006")
		}
		row[5] = departureTs.Format("3:04:05 PM")
	}
	if p.arrival != nil && p.departure != nil {
		dwell := departureTs.Sub(arrivalTs)
		if dwell < 0 {
			dwell = 0
		}
		row[6] = formatDuration(dwell)
	}

	var headwaySec *float64
	if p.arrival != nil {
		if headwayType == HeadwayDepartureArrival {
			headwaySec = p.arrival.headwayDA
		} else {
			headwaySec = p.arrival.headwayAA
		}
	}
	if headwaySec != nil {
		row[7] = formatDuration(time.Duration(*headwaySec * float64(time.Second)))
	}
	return row
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
