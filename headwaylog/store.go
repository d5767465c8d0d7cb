// Package headwaylog implements the day-partitioned append-only CSV event
// log: one file per calendar UTC date under each configured data
// directory, plus range-query, latest-event, export, and clear
// operations.
package headwaylog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/headway"
)

const subdir = "headway"

// Store is a day-partitioned CSV headway event log, safe for concurrent
// use. It implements headway.Sink.
type Store struct {
	mu       sync.Mutex
	dataDirs []string
	log      zerolog.Logger
}

// NewStore returns a Store writing under each dir's "headway/" subdirectory.
func NewStore(dataDirs []string, log zerolog.Logger) *Store {
	return &Store{dataDirs: dataDirs, log: log}
}

func dayFile(t time.Time) string {
	return t.UTC().Format("2006-01-02") + ".csv"
}

// Append writes one row to every configured data directory's day file for
// e.Timestamp's calendar UTC date. Row schema (no header):
// timestamp_iso_utc, route_id, stop_id, vehicle_id, event_type,
// headway_seconds, dwell_seconds.
func (s *Store) Append(e headway.HeadwayEvent) error {
	row := []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.RouteID,
		e.StopID,
		strconv.Itoa(e.VehicleID),
		string(e.EventType),
		formatOptFloat(headwaySecondsForRow(e)),
		formatOptFloat(e.DwellS),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := dayFile(e.Timestamp)
	var lastErr error
	wrote := false
	for _, dir := range s.dataDirs {
		full := filepath.Join(dir, subdir)
		if err := os.MkdirAll(full, 0o755); err != nil {
			s.log.Warn().Err(err).Str("dir", full).Msg("headwaylog: failed to create directory")
			lastErr = err
			continue
		}
		f, err := os.OpenFile(filepath.Join(full, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			s.log.Warn().Err(err).Str("dir", full).Msg("headwaylog: failed to open day file")
			lastErr = err
			continue
		}
		w := csv.NewWriter(f)
		if err := w.Write(row); err != nil {
			f.Close()
			lastErr = err
			continue
		}
		w.Flush()
		err = w.Error()
		f.Close()
		if err != nil {
			lastErr = err
			continue
		}
		wrote = true
	}
	if !wrote {
		return fmt.Errorf("headwaylog: append failed in every data directory: %w", lastErr)
	}
	return nil
}

// headwaySecondsForRow picks the arrival-arrival headway as the row's
// single persisted headway_seconds value.
func headwaySecondsForRow(e headway.HeadwayEvent) *float64 {
	return e.HeadwayArrivalArrivalS
}

func formatOptFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 3, 64)
}

// row is one parsed CSV record.
type row struct {
	Timestamp time.Time
	RouteID   string
	StopID    string
	VehicleID int
	EventType string
	HeadwayS  *float64
	DwellS    *float64
}

func parseRow(fields []string) (row, bool) {
	if len(fields) < 7 {
		return row{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return row{}, false
	}
	vid, err := strconv.Atoi(fields[3])
	if err != nil {
		return row{}, false
	}
	r := row{Timestamp: ts, RouteID: fields[1], StopID: fields[2], VehicleID: vid, EventType: fields[4]}
	if fields[5] != "" {
		if v, err := strconv.ParseFloat(fields[5], 64); err == nil {
			r.HeadwayS = &v
		}
	}
	if fields[6] != "" {
		if v, err := strconv.ParseFloat(fields[6], 64); err == nil {
			r.DwellS = &v
		}
	}
	return r, true
}

// readDay reads every row from the first readable copy of a day file
// across the configured data directories.
func (s *Store) readDay(date string) ([]row, error) {
	for _, dir := range s.dataDirs {
		path := filepath.Join(dir, subdir, date+".csv")
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		records, err := r.ReadAll()
		f.Close()
		if err != nil {
			return nil, err
		}
		out := make([]row, 0, len(records))
		for _, rec := range records {
			if parsed, ok := parseRow(rec); ok {
				out = append(out, parsed)
			}
		}
		return out, nil
	}
	return nil, nil
}

// datesInRange returns every calendar UTC date string between start and
// end inclusive.
func datesInRange(start, end time.Time) []string {
	start = start.UTC()
	end = end.UTC()
	var out []string
	for d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC); !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

// LatestArrival returns the most recent arrival row before "before" for
// (routeID, stopID), scanning only the calendar UTC date of "before".
// An empty routeID matches any route.
func (s *Store) LatestArrival(routeID, stopID string, before time.Time) (time.Time, bool) {
	return s.latestOfType(routeID, stopID, "arrival", before)
}

// LatestDeparture is the departure-event analogue of LatestArrival.
func (s *Store) LatestDeparture(routeID, stopID string, before time.Time) (time.Time, bool) {
	return s.latestOfType(routeID, stopID, "departure", before)
}

func (s *Store) latestOfType(routeID, stopID, eventType string, before time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readDay(dayFileDate(before))
	if err != nil || len(rows) == 0 {
		return time.Time{}, false
	}
	var best time.Time
	found := false
	for _, r := range rows {
		if r.EventType != eventType || r.StopID != stopID {
			continue
		}
		if routeID != "" && r.RouteID != routeID {
			continue
		}
		if r.Timestamp.After(before) {
			continue
		}
		if !found || r.Timestamp.After(best) {
			best = r.Timestamp
			found = true
		}
	}
	return best, found
}

func dayFileDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Query returns every row in [start, end] matching the optional routeIDs
// and stopIDs filters (empty means "no filter"), for GET /api/headway.
func (s *Store) Query(start, end time.Time, routeIDs, stopIDs []string) ([]headway.HeadwayEvent, error) {
	routeSet := toSet(routeIDs)
	stopSet := toSet(stopIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []headway.HeadwayEvent
	for _, date := range datesInRange(start, end) {
		rows, err := s.readDay(date)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.Timestamp.Before(start) || r.Timestamp.After(end) {
				continue
			}
			if len(routeSet) > 0 && !routeSet[r.RouteID] {
				continue
			}
			if len(stopSet) > 0 && !stopSet[r.StopID] {
				continue
			}
			out = append(out, rowToEvent(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func rowToEvent(r row) headway.HeadwayEvent {
	et := headway.EventArrival
	if r.EventType == string(headway.EventDeparture) {
		et = headway.EventDeparture
	}
	return headway.HeadwayEvent{
		Timestamp:              r.Timestamp,
		RouteID:                r.RouteID,
		StopID:                 r.StopID,
		VehicleID:              r.VehicleID,
		EventType:              et,
		HeadwayArrivalArrivalS: r.HeadwayS,
		DwellS:                 r.DwellS,
	}
}

func toSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// Clear deletes every day-partitioned headway file across every
// configured data directory, for POST /v1/headway/clear.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for _, dir := range s.dataDirs {
		full := filepath.Join(dir, subdir)
		entries, err := os.ReadDir(full)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
				continue
			}
			if err := os.Remove(filepath.Join(full, e.Name())); err != nil {
				lastErr = err
				s.log.Warn().Err(err).Str("file", e.Name()).Msg("headwaylog: failed to remove day file")
			}
		}
	}
	return lastErr
}
