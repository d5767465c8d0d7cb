package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/apierr"
	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/httpclient"
)

const defaultSpeedCapMph = 25.0
const roadMatchRadiusM = 50.0
const bboxPaddingM = 100.0

// RoadMetadataClient queries an Overpass API endpoint for way speed limits
// and names within a route's bounding box, used to stamp per-segment speed
// caps (m/s) and road names during route ingestion.
type RoadMetadataClient struct {
	http *httpclient.Client
	ep   string
	log  zerolog.Logger
}

// NewRoadMetadataClient builds a client against the given Overpass endpoint.
func NewRoadMetadataClient(h *httpclient.Client, endpoint string, log zerolog.Logger) *RoadMetadataClient {
	return &RoadMetadataClient{http: h, ep: endpoint, log: log}
}

type overpassWay struct {
	Type string            `json:"type"`
	Tags map[string]string `json:"tags"`
	Geometry []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
}

type overpassResponse struct {
	Elements []overpassWay `json:"elements"`
}

// way is the decoded, geometry-flattened form of an overpassWay used for
// nearest-node matching.
type way struct {
	maxspeedMps float64
	name        string
	nodes       []geo.Point
}

// FetchSegmentMetadata computes, for every segment of poly (len(poly)-1
// segments), a speed cap in m/s and a road name, by querying Overpass for
// ways with a maxspeed tag inside poly's bounding box (padded ~100m) and
// matching each segment's midpoint to the nearest way node within 50m.
// Unmatched segments get the default 25 mph cap and an empty name.
func (c *RoadMetadataClient) FetchSegmentMetadata(ctx context.Context, poly []geo.Point) (speedCapsMps []float64, roadNames []string, err error) {
	n := len(poly) - 1
	speedCapsMps = make([]float64, n)
	roadNames = make([]string, n)
	for i := range speedCapsMps {
		speedCapsMps[i] = defaultSpeedCapMph * 0.44704
	}
	if n <= 0 {
		return speedCapsMps, roadNames, nil
	}

	minLat, minLon, maxLat, maxLon := bbox(poly)
	query := overpassQuery(minLat, minLon, maxLat, maxLon)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ep, bytes.NewBufferString("data="+query))
	if err != nil {
		return speedCapsMps, roadNames, apierr.Wrap(apierr.TransientUpstream, "building overpass request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, doErr := c.http.Do(req)
	if doErr != nil {
		return speedCapsMps, roadNames, apierr.Wrap(apierr.TransientUpstream, "calling overpass", doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if readErr != nil {
		return speedCapsMps, roadNames, apierr.Wrap(apierr.TransientUpstream, "reading overpass body", readErr)
	}
	if resp.StatusCode >= 500 {
		return speedCapsMps, roadNames, apierr.New(apierr.TransientUpstream, fmt.Sprintf("overpass returned %d", resp.StatusCode))
	}

	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return speedCapsMps, roadNames, apierr.Wrap(apierr.BadUpstreamPayload, "parsing overpass response", err)
	}

	ways := make([]way, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		if el.Type != "way" || len(el.Geometry) == 0 {
			continue
		}
		mps, ok := parseMaxspeedMps(el.Tags["maxspeed"])
		if !ok {
			continue
		}
		nodes := make([]geo.Point, len(el.Geometry))
		for i, g := range el.Geometry {
			nodes[i] = geo.Point{Lat: g.Lat, Lon: g.Lon}
		}
		ways = append(ways, way{maxspeedMps: mps, name: el.Tags["name"], nodes: nodes})
	}

	for i := 0; i < n; i++ {
		mid := geo.Point{Lat: (poly[i].Lat + poly[i+1].Lat) / 2, Lon: (poly[i].Lon + poly[i+1].Lon) / 2}
		if w, ok := nearestWay(mid, ways); ok {
			speedCapsMps[i] = w.maxspeedMps
			roadNames[i] = w.name
		}
	}
	return speedCapsMps, roadNames, nil
}

func bbox(poly []geo.Point) (minLat, minLon, maxLat, maxLon float64) {
	minLat, minLon = poly[0].Lat, poly[0].Lon
	maxLat, maxLon = poly[0].Lat, poly[0].Lon
	for _, p := range poly[1:] {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}
	// ~100m padding in degrees (rough, fine for a bbox query).
	const degPerMeterLat = 1.0 / 111320.0
	latPad := bboxPaddingM * degPerMeterLat
	lonPad := bboxPaddingM * degPerMeterLat
	return minLat - latPad, minLon - lonPad, maxLat + latPad, maxLon + lonPad
}

func overpassQuery(minLat, minLon, maxLat, maxLon float64) string {
	return fmt.Sprintf(
		`[out:json][timeout:25];way["maxspeed"](%f,%f,%f,%f);out geom;`,
		minLat, minLon, maxLat, maxLon,
	)
}

func nearestWay(pt geo.Point, ways []way) (way, bool) {
	best := way{}
	bestDist := roadMatchRadiusM
	found := false
	for _, w := range ways {
		for _, node := range w.nodes {
			d := geo.HaversineM(pt, node)
			if d <= bestDist {
				bestDist = d
				best = w
				found = true
			}
		}
	}
	return best, found
}

// parseMaxspeedMps parses an OSM maxspeed tag value, which is mph unless
// suffixed "km/h", into meters per second.
func parseMaxspeedMps(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if strings.HasSuffix(raw, "km/h") {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(raw, "km/h")), 64)
		if err != nil {
			return 0, false
		}
		return v * 1000 / 3600, true
	}
	raw = strings.TrimSuffix(raw, "mph")
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v * 0.44704, true
}
