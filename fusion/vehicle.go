package fusion

import (
	"math"

	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/state"
)

// projectionTieM is the perpendicular-distance tie window within which
// segment candidates are disambiguated by heading/continuity.
const projectionTieM = 2.0

// fuseVehicle builds one VehicleFused from a raw fix and its route,
// carrying continuity from the prior tick's fused record for the same
// vehicle. persistedHeading/hasPersisted is the
// last-known heading loaded from vehicle_headings.json, used only when
// neither displacement nor a prior tick supplies one.
func (e *Engine) fuseVehicle(v state.VehicleRaw, route state.Route, prev state.VehicleFused, hasPrev bool, persistedHeading float64, hasPersisted bool) state.VehicleFused {
	cur := geo.Point{Lat: v.Lat, Lon: v.Lon}

	heading := determineHeading(cur, prev, hasPrev, e.cfg.HeadingJitterM, persistedHeading, hasPersisted)

	preferHeading := heading
	preferSegment := -1
	if hasPrev {
		preferSegment = prev.SegmentIndex
	}

	poly := make([]geo.Point, len(route.Polyline))
	for i, p := range route.Polyline {
		poly[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}

	proj := geo.ProjectOntoPolyline(poly, cur, projectionTieM, preferHeading, preferSegment)
	arcLength := geo.ArcLength(route.CumulativeDistances, poly, proj.SegmentIndex, proj.T)

	var deltaT float64
	if hasPrev {
		deltaT = v.ProviderTimestamp.Sub(prev.ProviderTimestamp).Seconds()
	}

	var alongSpeed float64
	if deltaT > 0 {
		delta := geo.Wrap(arcLength-prev.ArcLengthM, route.TotalLengthM)
		alongSpeed = delta / deltaT
	}

	direction := determineDirection(alongSpeed, hasPrev, prev.DirectionSign, heading, proj.Bearing)

	measured := math.Abs(alongSpeed)
	if v.GroundSpeedMps > 0 {
		measured = 0.5*v.GroundSpeedMps + 0.5*math.Abs(alongSpeed)
	}
	ema := measured
	if hasPrev {
		ema = e.cfg.EMAAlpha*measured + (1-e.cfg.EMAAlpha)*prev.EMASpeedMps
	}
	ema = clamp(ema, e.cfg.MinSpeedFloorMps, e.cfg.MaxSpeedCeilMps)

	age := v.AgeS()

	return state.VehicleFused{
		VehicleRaw: withHeading(v, heading),

		ArcLengthM:         clamp(arcLength, 0, route.TotalLengthM),
		SegmentIndex:       proj.SegmentIndex,
		DirectionSign:      direction,
		EMASpeedMps:        ema,
		AlongRouteSpeedMps: alongSpeed,
		IsStale:            age > e.cfg.StaleFixS.Seconds(),
		IsVeryStale:        age >= e.cfg.VehicleStaleThresholdS.Seconds(),

		VehicleName: v.Name,
	}
}

func withHeading(v state.VehicleRaw, heading float64) state.VehicleRaw {
	v.HeadingDeg = geo.NormalizeHeading(heading)
	return v
}

// determineHeading walks the heading fallback chain:
// bearing-from-displacement, else carried prior heading, else the
// persisted last-known heading, else 0.
func determineHeading(cur geo.Point, prev state.VehicleFused, hasPrev bool, jitterM, persisted float64, hasPersisted bool) float64 {
	if hasPrev {
		priorPt := geo.Point{Lat: prev.Lat, Lon: prev.Lon}
		if geo.HaversineM(priorPt, cur) >= jitterM {
			return geo.InitialBearing(priorPt, cur)
		}
		return prev.HeadingDeg
	}
	if hasPersisted {
		return persisted
	}
	return 0
}

// determineDirection resolves the along-route direction sign.
func determineDirection(alongSpeed float64, hasPrev bool, priorSign int, heading, segmentBearing float64) int {
	switch {
	case alongSpeed > dirEpsMps:
		return 1
	case alongSpeed < -dirEpsMps:
		return -1
	}
	if hasPrev {
		return priorSign
	}
	if geo.HeadingDiff(heading, segmentBearing) <= 90 {
		return 1
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
