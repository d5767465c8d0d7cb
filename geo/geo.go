// Package geo provides the clock-independent geometry primitives shared
// by fusion and the headway tracker: Haversine distance, bearing,
// polyline decoding, and local-plane segment projection.
package geo

import "math"

const earthRadiusM = 6371000.0

// Point is a (latitude, longitude) pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// HaversineM returns the great-circle distance between a and b in meters.
func HaversineM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// InitialBearing returns the initial bearing in degrees [0, 360) travelling
// from a to b along the great circle.
func InitialBearing(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	theta := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(theta+360, 360)
}

// HeadingDiff returns the minimal absolute angular difference between two
// headings in degrees, in [0, 180].
func HeadingDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// NormalizeHeading wraps a heading into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// Wrap returns delta mapped into [-modulus/2, modulus/2], used when an
// along-route arc-length delta crosses a loop/interlined route's seam.
func Wrap(delta, modulus float64) float64 {
	if modulus <= 0 {
		return delta
	}
	d := math.Mod(delta, modulus)
	switch {
	case d > modulus/2:
		d -= modulus
	case d < -modulus/2:
		d += modulus
	}
	return d
}

// localXY projects a point into a local tangent-plane (equirectangular)
// coordinate system centred on origin, in meters. Accurate for the short
// (sub-few-km) segment spans a route polyline covers.
func localXY(origin, p Point) (x, y float64) {
	const degToRad = math.Pi / 180
	latRad := origin.Lat * degToRad
	x = (p.Lon - origin.Lon) * degToRad * earthRadiusM * math.Cos(latRad)
	y = (p.Lat - origin.Lat) * degToRad * earthRadiusM
	return
}

// SegmentProjection is the result of projecting a point onto one polyline
// segment: the clamped parametric position t in [0,1], the perpendicular
// distance in meters, and the segment's initial bearing from its start
// to its end.
type SegmentProjection struct {
	T            float64
	DistanceM    float64
	SegmentIndex int
	Bearing      float64
}

// ProjectOntoPolyline scores every segment of poly by squared perpendicular
// distance from pt and returns the closest, breaking ties (within tieM
// meters) by preference for the segment bearing closest to preferHeading,
// then by circular closeness to preferSegment.
func ProjectOntoPolyline(poly []Point, pt Point, tieM, preferHeading float64, preferSegment int) SegmentProjection {
	best := SegmentProjection{SegmentIndex: -1, DistanceM: math.Inf(1)}
	if len(poly) < 2 {
		return best
	}

	origin := poly[0]
	px, py := localXY(origin, pt)

	candidates := make([]SegmentProjection, 0, len(poly)-1)
	for i := 0; i < len(poly)-1; i++ {
		ax, ay := localXY(origin, poly[i])
		bx, by := localXY(origin, poly[i+1])
		dx, dy := bx-ax, by-ay
		segLen2 := dx*dx + dy*dy

		var t float64
		if segLen2 > 0 {
			t = ((px-ax)*dx + (py-ay)*dy) / segLen2
		}
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}

		projX := ax + t*dx
		projY := ay + t*dy
		ddx, ddy := px-projX, py-projY
		dist := math.Sqrt(ddx*ddx + ddy*ddy)

		candidates = append(candidates, SegmentProjection{
			T:            t,
			DistanceM:    dist,
			SegmentIndex: i,
			Bearing:      InitialBearing(poly[i], poly[i+1]),
		})
	}

	for _, c := range candidates {
		if c.DistanceM < best.DistanceM {
			best = c
		}
	}

	// Tie-break within tieM meters of the best distance.
	if tieM <= 0 {
		return best
	}
	tied := make([]SegmentProjection, 0, 2)
	for _, c := range candidates {
		if c.DistanceM-best.DistanceM <= tieM {
			tied = append(tied, c)
		}
	}
	if len(tied) <= 1 {
		return best
	}

	// Prefer the segment whose bearing best matches the vehicle heading.
	bestHeadingIdx := 0
	bestHeadingDiff := math.Inf(1)
	for i, c := range tied {
		d := HeadingDiff(c.Bearing, preferHeading)
		if d < bestHeadingDiff {
			bestHeadingDiff = d
			bestHeadingIdx = i
		}
	}
	// If heading itself is ambiguous (all candidates within 1 degree),
	// fall back to circular closeness to the previous segment index.
	allClose := true
	for _, c := range tied {
		if math.Abs(HeadingDiff(c.Bearing, preferHeading)-bestHeadingDiff) > 1 {
			allClose = false
			break
		}
	}
	if allClose && preferSegment >= 0 {
		bestIdx := 0
		bestDist := math.MaxInt64
		for i, c := range tied {
			d := circularDist(c.SegmentIndex, preferSegment, len(poly)-1)
			if d < bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		return tied[bestIdx]
	}
	return tied[bestHeadingIdx]
}

func circularDist(a, b, modulus int) int {
	if modulus <= 0 {
		return 0
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	alt := modulus - d
	if alt < d {
		return alt
	}
	return d
}

// CumulativeDistances returns, for a polyline, the cumulative Haversine
// arc length at each vertex (the first entry is always 0). Used to
// precompute a route's cumulative arc-length table.
func CumulativeDistances(poly []Point) []float64 {
	out := make([]float64, len(poly))
	for i := 1; i < len(poly); i++ {
		out[i] = out[i-1] + HaversineM(poly[i-1], poly[i])
	}
	return out
}

// ArcLength returns the distance along the polyline up to the projected
// point on segment segIdx at parametric t, given precomputed cumulative
// distances (len(cum) == len(poly)).
func ArcLength(cum []float64, poly []Point, segIdx int, t float64) float64 {
	if segIdx < 0 || segIdx+1 >= len(poly) {
		return 0
	}
	segLen := cum[segIdx+1] - cum[segIdx]
	return cum[segIdx] + t*segLen
}
