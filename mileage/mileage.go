// Package mileage implements the per-(bus, service-day) Haversine-integrated
// odometer: a mutex-guarded accumulator with running day and lifetime
// totals and a resettable reset_miles baseline, persisted atomically via
// the persist package.
package mileage

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/persist"
)

const fileName = "mileage.json"

// BusDay is one (bus, service-day) odometer record.
type BusDay struct {
	TotalMiles float64         `json:"total_miles"`
	ResetMiles float64         `json:"reset_miles"`
	DayMiles   float64         `json:"day_miles"`
	Blocks     map[string]bool `json:"blocks"`
	LastLat    *float64        `json:"last_lat,omitempty"`
	LastLon    *float64        `json:"last_lon,omitempty"`
}

// DisplayMiles is total_miles minus the reset_miles baseline.
func (b BusDay) DisplayMiles() float64 { return b.TotalMiles - b.ResetMiles }

var onDiskDigitsOnly = regexp.MustCompile(`[^0-9]`)

// NormalizeBusName reduces a raw vehicle name to its digits-only bus key.
func NormalizeBusName(name string) string {
	return onDiskDigitsOnly.ReplaceAllString(name, "")
}

// Accumulator owns every BusDay record, keyed by service date then bus.
type Accumulator struct {
	mu      sync.Mutex
	dataDirs []string
	log     zerolog.Logger
	days    map[string]map[string]*BusDay // serviceDate -> bus -> record
}

// NewAccumulator loads any existing mileage.json from the first readable
// data directory, or starts empty if none is found.
func NewAccumulator(dataDirs []string, log zerolog.Logger) *Accumulator {
	a := &Accumulator{
		dataDirs: dataDirs,
		log:      log,
		days:     make(map[string]map[string]*BusDay),
	}
	var loaded map[string]map[string]*BusDay
	found, err := persist.ReadJSONFirst(dataDirs, fileName, &loaded)
	if err != nil {
		log.Warn().Err(err).Msg("mileage: failed to read existing mileage.json, starting empty")
	} else if found {
		a.days = loaded
	}
	for _, byBus := range a.days {
		for _, bd := range byBus {
			if bd.Blocks == nil {
				bd.Blocks = make(map[string]bool)
			}
		}
	}
	return a
}

// ServiceDay returns the service date (YYYY-MM-DD) for t interpreted
// in loc: date(t)-1day if local time is before 02:30, else date(t).
func ServiceDay(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	boundary := time.Date(lt.Year(), lt.Month(), lt.Day(), 2, 30, 0, 0, loc)
	if lt.Before(boundary) {
		lt = lt.AddDate(0, 0, -1)
	}
	return lt.Format("2006-01-02")
}

// Update applies one AVL position tick for a bus to its (service-day)
// odometer. name is the raw vehicle name; lat/lon
// are the vehicle's current fix. A no-op if name normalizes to empty.
func (a *Accumulator) Update(serviceDate, name string, lat, lon float64) {
	bus := NormalizeBusName(name)
	if bus == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	bd := a.getOrSeed(serviceDate, bus)

	if bd.LastLat != nil && bd.LastLon != nil {
		dMi := geo.HaversineM(geo.Point{Lat: *bd.LastLat, Lon: *bd.LastLon}, geo.Point{Lat: lat, Lon: lon}) / 1609.34
		bd.TotalMiles += dMi
		bd.DayMiles += dMi
	}
	bd.LastLat = &lat
	bd.LastLon = &lon
}

// getOrSeed returns the record for (serviceDate, bus), creating it and
// seeding total_miles/reset_miles/last_lat/last_lon from the most recent
// prior service-date record for the same bus when this is the bus's first
// appearance today. Caller must hold a.mu.
func (a *Accumulator) getOrSeed(serviceDate, bus string) *BusDay {
	byBus, ok := a.days[serviceDate]
	if !ok {
		byBus = make(map[string]*BusDay)
		a.days[serviceDate] = byBus
	}
	if bd, ok := byBus[bus]; ok {
		return bd
	}

	bd := &BusDay{Blocks: make(map[string]bool)}
	if prev, ok := a.mostRecentPrior(serviceDate, bus); ok {
		bd.TotalMiles = prev.TotalMiles
		bd.ResetMiles = prev.ResetMiles
		bd.LastLat = prev.LastLat
		bd.LastLon = prev.LastLon
	}
	byBus[bus] = bd
	return bd
}

func (a *Accumulator) mostRecentPrior(serviceDate, bus string) (*BusDay, bool) {
	var dates []string
	for d := range a.days {
		if d < serviceDate {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, false
	}
	sort.Strings(dates)
	for i := len(dates) - 1; i >= 0; i-- {
		if bd, ok := a.days[dates[i]][bus]; ok {
			return bd, true
		}
	}
	return nil, false
}

// ObserveBlock records that bus ran blockID on serviceDate, from a
// block-group fetch.
func (a *Accumulator) ObserveBlock(serviceDate, name, blockID string) {
	bus := NormalizeBusName(name)
	if bus == "" || blockID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	bd := a.getOrSeed(serviceDate, bus)
	bd.Blocks[blockID] = true
}

// Get returns a copy of the record for (serviceDate, bus), if present.
func (a *Accumulator) Get(serviceDate, bus string) (BusDay, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bd, ok := a.days[serviceDate][bus]
	if !ok {
		return BusDay{}, false
	}
	return *bd, true
}

// Reset sets reset_miles to the bus's current total_miles on serviceDate,
// so displayed miles restart from zero. Returns the new reset_miles, or an
// error if the bus has no record on serviceDate yet.
func (a *Accumulator) Reset(serviceDate, name string) (float64, error) {
	bus := NormalizeBusName(name)
	a.mu.Lock()
	defer a.mu.Unlock()
	bd, ok := a.days[serviceDate][bus]
	if !ok {
		return 0, fmt.Errorf("mileage: no record for bus %q on %s", bus, serviceDate)
	}
	bd.ResetMiles = bd.TotalMiles
	return bd.ResetMiles, nil
}

// Persist atomically writes the full day->bus->record table to every
// configured data directory.
func (a *Accumulator) Persist() error {
	a.mu.Lock()
	snapshot := make(map[string]map[string]*BusDay, len(a.days))
	for d, byBus := range a.days {
		cp := make(map[string]*BusDay, len(byBus))
		for bus, bd := range byBus {
			v := *bd
			cp[bus] = &v
		}
		snapshot[d] = cp
	}
	a.mu.Unlock()

	return persist.WriteJSONAll(a.dataDirs, fileName, snapshot, a.log)
}
