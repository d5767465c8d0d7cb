package geo

// DecodePolyline decodes a Google-encoded polyline string into a sequence
// of points. Each coordinate is a 5-bit-chunk, continuation-bit
// varint of a zig-zag-encoded signed delta from the previous coordinate,
// scaled by 1e5.
func DecodePolyline(encoded string) []Point {
	if encoded == "" {
		return nil
	}

	var points []Point
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		dLat, n, ok := decodeVarint(encoded, index)
		if !ok {
			break
		}
		index = n
		lat += dLat

		dLon, n2, ok := decodeVarint(encoded, index)
		if !ok {
			break
		}
		index = n2
		lon += dLon

		points = append(points, Point{
			Lat: float64(lat) / 1e5,
			Lon: float64(lon) / 1e5,
		})
	}
	return points
}

// decodeVarint reads one zig-zag varint starting at index, returning the
// decoded signed value and the index just past it.
func decodeVarint(s string, index int) (value int, next int, ok bool) {
	result := 0
	shift := uint(0)

	for index < len(s) {
		b := int(s[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				value = ^(result >> 1)
			} else {
				value = result >> 1
			}
			return value, index, true
		}
	}
	return 0, index, false
}

// EncodePolyline encodes a sequence of points into a Google-encoded
// polyline string. Provided for round-trip tests and tooling; the core
// only ever decodes upstream-supplied polylines.
func EncodePolyline(points []Point) string {
	var out []byte
	lat, lon := 0, 0

	for _, p := range points {
		newLat := round1e5(p.Lat)
		newLon := round1e5(p.Lon)

		out = appendVarint(out, newLat-lat)
		out = appendVarint(out, newLon-lon)

		lat, lon = newLat, newLon
	}
	return string(out)
}

func round1e5(v float64) int {
	if v >= 0 {
		return int(v*1e5 + 0.5)
	}
	return int(v*1e5 - 0.5)
}

func appendVarint(out []byte, v int) []byte {
	shifted := v << 1
	if v < 0 {
		shifted = ^shifted
	}
	for shifted >= 0x20 {
		out = append(out, byte((0x20|(shifted&0x1f))+63))
		shifted >>= 5
	}
	out = append(out, byte(shifted+63))
	return out
}
