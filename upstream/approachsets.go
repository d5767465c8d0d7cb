package upstream

import (
	"github.com/ridgeway-transit/opscore/persist"
	"github.com/ridgeway-transit/opscore/state"
)

// approachSetsFile holds the hand-curated geofence catalog for the
// headway tracker. Unlike routes, stops,
// and vehicles, approach bubbles are not published by the AVL provider —
// they are operator-maintained ground truth persisted alongside the
// core's other on-disk state.
const approachSetsFile = "approach_sets.json"

// approachSetWire mirrors state.ApproachSet for JSON decoding.
type approachSetWire struct {
	Name    string `json:"name"`
	Bubbles []struct {
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		RadiusM float64 `json:"radius_m"`
		Order   int     `json:"order"`
	} `json:"bubbles"`
}

// LoadApproachSets reads approach_sets.json (a map of stop_id -> ordered
// approach sets) from the first readable configured data directory. A
// missing file is not an error: stops simply carry no approach sets and
// the headway tracker tracks nothing for them.
func LoadApproachSets(dataDirs []string) (map[string][]state.ApproachSet, error) {
	var wire map[string][]approachSetWire
	found, err := persist.ReadJSONFirst(dataDirs, approachSetsFile, &wire)
	if err != nil || !found {
		return map[string][]state.ApproachSet{}, err
	}

	out := make(map[string][]state.ApproachSet, len(wire))
	for stopID, sets := range wire {
		converted := make([]state.ApproachSet, len(sets))
		for i, s := range sets {
			bubbles := make([]state.Bubble, len(s.Bubbles))
			for j, b := range s.Bubbles {
				radius := b.RadiusM
				if radius < 5 {
					radius = 5
				} else if radius > 200 {
					radius = 200
				}
				bubbles[j] = state.Bubble{Lat: b.Lat, Lon: b.Lon, RadiusM: radius, Order: b.Order}
			}
			converted[i] = state.ApproachSet{Name: s.Name, Bubbles: bubbles}
		}
		out[stopID] = converted
	}
	return out, nil
}

// ApplyApproachSets attaches the loaded approach-set catalog to raw stops
// by stop_id, before MergeStops runs.
func ApplyApproachSets(stops []state.Stop, byStopID map[string][]state.ApproachSet) []state.Stop {
	out := make([]state.Stop, len(stops))
	for i, s := range stops {
		s.ApproachSets = byStopID[s.StopID]
		out[i] = s
	}
	return out
}
