package geo

import (
	"math"
	"testing"
)

func TestDecodePolylineRoundTrip(t *testing.T) {
	// Canonical Google-encoded-polyline example.
	const encoded = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	want := []Point{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}

	got := DecodePolyline(encoded)
	if len(got) != len(want) {
		t.Fatalf("got %d points, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if math.Abs(got[i].Lat-want[i].Lat) > 1e-5 {
			t.Errorf("point %d lat = %v, want %v", i, got[i].Lat, want[i].Lat)
		}
		if math.Abs(got[i].Lon-want[i].Lon) > 1e-5 {
			t.Errorf("point %d lon = %v, want %v", i, got[i].Lon, want[i].Lon)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pts := []Point{{Lat: 38.5, Lon: -120.2}, {Lat: 40.7, Lon: -120.95}}
	encoded := EncodePolyline(pts)
	got := DecodePolyline(encoded)
	if len(got) != len(pts) {
		t.Fatalf("got %d points, want %d", len(got), len(pts))
	}
	for i := range pts {
		if math.Abs(got[i].Lat-pts[i].Lat) > 1e-5 || math.Abs(got[i].Lon-pts[i].Lon) > 1e-5 {
			t.Errorf("point %d = %v, want %v", i, got[i], pts[i])
		}
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Roughly 1 degree of latitude ~ 111.2 km near the equator.
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 1, Lon: 0}
	d := HaversineM(a, b)
	if math.Abs(d-111195) > 500 {
		t.Errorf("HaversineM = %v, want ~111195", d)
	}
}

func TestHeadingDiff(t *testing.T) {
	cases := []struct{ a, b, want float64 }{
		{0, 350, 10},
		{10, 350, 20},
		{180, 0, 180},
		{90, 90, 0},
	}
	for _, c := range cases {
		got := HeadingDiff(c.a, c.b)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("HeadingDiff(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestWrap(t *testing.T) {
	// A vehicle crossing the loop seam: arc length jumps from near-total
	// back to near-zero; the wrapped delta should be small and positive.
	total := 1000.0
	delta := Wrap(5-990, total) // -985 wraps to +15
	if math.Abs(delta-15) > 1e-9 {
		t.Errorf("Wrap = %v, want 15", delta)
	}
}

func TestProjectOntoPolylineClampsToSegment(t *testing.T) {
	poly := []Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}
	// Point far past the second vertex should clamp t to 1.
	proj := ProjectOntoPolyline(poly, Point{Lat: 0, Lon: 0.02}, 2, 90, -1)
	if proj.T != 1 {
		t.Errorf("T = %v, want 1 (clamped)", proj.T)
	}
	if proj.SegmentIndex != 0 {
		t.Errorf("SegmentIndex = %v, want 0", proj.SegmentIndex)
	}
}

func TestCumulativeDistancesNonDecreasing(t *testing.T) {
	poly := []Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}, {Lat: 0.01, Lon: 0.01}}
	cum := CumulativeDistances(poly)
	for i := 1; i < len(cum); i++ {
		if cum[i] < cum[i-1] {
			t.Errorf("cumulative distances not non-decreasing at %d: %v", i, cum)
		}
	}
	if cum[0] != 0 {
		t.Errorf("cum[0] = %v, want 0", cum[0])
	}
}
