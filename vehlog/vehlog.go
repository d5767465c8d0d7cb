// Package vehlog keeps a bounded in-memory position history per vehicle,
// sampled from the fused view on its own cadence, for the dispatcher
// replay surface. History is deliberately not persisted: it is a rolling
// diagnostic window, not operational state.
package vehlog

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/state"
)

// Point is one logged vehicle position sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	RouteID   int       `json:"route_id,omitempty"`
}

// Logger accumulates per-vehicle position history, dropping samples where
// the vehicle moved less than minMoveM since its last logged point and
// pruning anything older than retention.
type Logger struct {
	mu        sync.Mutex
	minMoveM  float64
	retention time.Duration
	byVehicle map[int][]Point
	log       zerolog.Logger
}

// New returns an empty Logger.
func New(minMoveM float64, retention time.Duration, log zerolog.Logger) *Logger {
	return &Logger{
		minMoveM:  minMoveM,
		retention: retention,
		byVehicle: make(map[int][]Point),
		log:       log,
	}
}

// Observe samples the current fused vehicles: each vehicle that moved at
// least minMoveM since its last logged point (or has none) gets a new
// point stamped with now, and every vehicle's history is pruned to the
// retention window.
func (l *Logger) Observe(now time.Time, vehicles []state.VehicleFused) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.retention)
	for _, v := range vehicles {
		hist := l.byVehicle[v.VehicleID]
		if n := len(hist); n > 0 {
			last := hist[n-1]
			moved := geo.HaversineM(geo.Point{Lat: last.Lat, Lon: last.Lon}, geo.Point{Lat: v.Lat, Lon: v.Lon})
			if moved < l.minMoveM {
				continue
			}
		}
		p := Point{Timestamp: now, Lat: v.Lat, Lon: v.Lon}
		if v.RouteID != nil {
			p.RouteID = *v.RouteID
		}
		l.byVehicle[v.VehicleID] = append(hist, p)
	}

	for vid, hist := range l.byVehicle {
		idx := sort.Search(len(hist), func(i int) bool { return hist[i].Timestamp.After(cutoff) })
		if idx == len(hist) {
			delete(l.byVehicle, vid)
			continue
		}
		if idx > 0 {
			l.byVehicle[vid] = append([]Point(nil), hist[idx:]...)
		}
	}
}

// History returns a copy of vehicleID's logged points within [start, end],
// oldest first.
func (l *Logger) History(vehicleID int, start, end time.Time) []Point {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Point
	for _, p := range l.byVehicle[vehicleID] {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// VehicleIDs returns every vehicle with at least one logged point,
// ascending.
func (l *Logger) VehicleIDs() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int, 0, len(l.byVehicle))
	for vid := range l.byVehicle {
		out = append(out, vid)
	}
	sort.Ints(out)
	return out
}
