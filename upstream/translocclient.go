package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/apierr"
	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/httpclient"
	"github.com/ridgeway-transit/opscore/state"
)

// CallRecorder is invoked after every upstream call with enough detail to
// feed the /v1/stream/api_calls log. Implementations must not block.
type CallRecorder func(method, url string, status int, took time.Duration, err error)

// TranslocClient wraps the shared HTTP client with the AVL-provider base
// URL and API key, and converts every response into domain types.
type TranslocClient struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
	log     zerolog.Logger
	record  CallRecorder
}

// NewTranslocClient builds a client for the configured AVL provider.
func NewTranslocClient(h *httpclient.Client, baseURL, apiKey string, log zerolog.Logger, record CallRecorder) *TranslocClient {
	if record == nil {
		record = func(string, string, int, time.Duration, error) {}
	}
	return &TranslocClient{http: h, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, log: log, record: record}
}

func (c *TranslocClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.TransientUpstream, "building upstream request", err)
	}

	resp, err := c.http.Do(req)
	took := time.Since(t0)
	if err != nil {
		c.record(http.MethodGet, full, 0, took, err)
		return nil, apierr.Wrap(apierr.TransientUpstream, "calling upstream "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	c.record(http.MethodGet, full, resp.StatusCode, took, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.TransientUpstream, "reading upstream body", err)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apierr.New(apierr.UpstreamNotFound, fmt.Sprintf("upstream %s returned %d", path, resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return nil, apierr.New(apierr.TransientUpstream, fmt.Sprintf("upstream %s returned %d", path, resp.StatusCode))
	}
	return body, nil
}

// FetchRoutes retrieves the routes-with-shapes endpoint and returns decoded
// Route domain objects with their polylines pre-decoded.
func (c *TranslocClient) FetchRoutes(ctx context.Context) ([]state.Route, error) {
	body, err := c.get(ctx, "/RoutesWithShapes", nil)
	if err != nil {
		return nil, err
	}

	var wire []RouteWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing routes-with-shapes", err)
	}

	routes := make([]state.Route, 0, len(wire))
	for _, w := range wire {
		pts := geo.DecodePolyline(w.EncodedPolyline)
		if len(pts) < 2 {
			c.log.Warn().Int("route_id", w.RouteID).Msg("route polyline decoded to fewer than 2 points, skipping")
			continue
		}
		cum := geo.CumulativeDistances(pts)
		statePts := make([]state.Point, len(pts))
		for i, p := range pts {
			statePts[i] = state.Point{Lat: p.Lat, Lon: p.Lon}
		}
		routes = append(routes, state.Route{
			RouteID:             w.RouteID,
			Description:         w.Description,
			InfoText:            w.InfoText,
			Color:               w.MapLineColor,
			EncodedPolyline:     w.EncodedPolyline,
			Polyline:            statePts,
			CumulativeDistances: cum,
			TotalLengthM:        cum[len(cum)-1],
		})
	}
	return routes, nil
}

// FetchRouteCatalog retrieves the simple routes catalog, used to discover
// routes the provider has marked inactive so they can be dropped without
// waiting for their last-seen grace window to lapse.
func (c *TranslocClient) FetchRouteCatalog(ctx context.Context) ([]RouteCatalogWire, error) {
	body, err := c.get(ctx, "/Routes", nil)
	if err != nil {
		return nil, err
	}
	var wire []RouteCatalogWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing routes catalog", err)
	}
	return wire, nil
}

// FetchStops retrieves the stops endpoint and returns domain Stop values
// (unmerged; MergeStops is applied by the fusion worker once all stop
// sources for a tick are collected).
func (c *TranslocClient) FetchStops(ctx context.Context) ([]state.Stop, error) {
	body, err := c.get(ctx, "/Stops", nil)
	if err != nil {
		return nil, err
	}

	var wire []StopWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing stops", err)
	}

	out := make([]state.Stop, 0, len(wire))
	for _, w := range wire {
		ids := make(map[string]struct{}, len(w.RouteIDs))
		for _, rid := range w.RouteIDs {
			ids[rid] = struct{}{}
		}
		out = append(out, state.Stop{
			StopID:            w.StopID,
			PhysicalAddressID: w.AddressID,
			Lat:               w.Latitude,
			Lon:               w.Longitude,
			Name:              w.StopName,
			ServesRouteIDs:    ids,
		})
	}
	return out, nil
}

// FetchVehicles retrieves the vehicles endpoint. fetchedAt should be the
// fusion tick's start time, and it is stamped onto every returned record as
// FetchedAt; the parsed MS-AJAX value becomes ProviderTimestamp.
func (c *TranslocClient) FetchVehicles(ctx context.Context, fetchedAt time.Time) ([]state.VehicleRaw, error) {
	body, err := c.get(ctx, "/GetMapVehiclePoints", nil)
	if err != nil {
		return nil, err
	}

	var wire []VehicleWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing vehicles", err)
	}

	out := make([]state.VehicleRaw, 0, len(wire))
	for _, w := range wire {
		ts, err := ParseMSAjax(w.TimeStampUTC)
		if err != nil {
			c.log.Warn().Err(err).Int("vehicle_id", w.VehicleID).Msg("dropping vehicle with unparseable timestamp")
			continue
		}
		out = append(out, state.VehicleRaw{
			VehicleID:         w.VehicleID,
			Name:              w.Name,
			RouteID:           w.RouteID,
			Lat:               w.Latitude,
			Lon:               w.Longitude,
			HeadingDeg:        geo.NormalizeHeading(w.Heading),
			GroundSpeedMps:    w.GroundSpeed,
			ProviderTimestamp: ts,
			FetchedAt:         fetchedAt,
		})
	}
	return out, nil
}

// FetchCapacities retrieves the vehicle-capacities endpoint.
func (c *TranslocClient) FetchCapacities(ctx context.Context) ([]state.Capacity, error) {
	body, err := c.get(ctx, "/GetVehicleCapacities", nil)
	if err != nil {
		return nil, err
	}
	var wire []CapacityWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing capacities", err)
	}
	out := make([]state.Capacity, len(wire))
	for i, w := range wire {
		out[i] = state.Capacity{
			VehicleID:         w.VehicleID,
			Capacity:          w.Capacity,
			CurrentOccupation: w.CurrentOccupation,
			Percentage:        w.Percentage,
		}
	}
	return out, nil
}

// FetchEstimates retrieves batched route-stop estimates for the given
// vehicle IDs, comma-joined.
func (c *TranslocClient) FetchEstimates(ctx context.Context, vehicleIDs []int) ([]state.StopEstimate, error) {
	if len(vehicleIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(vehicleIDs))
	for i, v := range vehicleIDs {
		ids[i] = strconv.Itoa(v)
	}
	q := url.Values{"vehicleIDs": []string{strings.Join(ids, ",")}}

	body, err := c.get(ctx, "/GetStopEstimatesForVehicles", q)
	if err != nil {
		return nil, err
	}
	var wire []EstimateWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing stop estimates", err)
	}

	var out []state.StopEstimate
	for _, w := range wire {
		for _, e := range w.Estimates {
			out = append(out, state.StopEstimate{VehicleID: w.VehicleID, StopID: e.StopID, ETASec: e.Seconds})
		}
	}
	return out, nil
}

// FetchScheduleCalendar retrieves the schedule-calendar-by-date endpoint
// for the given local date (YYYY-MM-DD).
func (c *TranslocClient) FetchScheduleCalendar(ctx context.Context, date string) ([]int, error) {
	q := url.Values{"date": []string{date}}
	body, err := c.get(ctx, "/GetScheduleVehicleCalendarByDate", q)
	if err != nil {
		return nil, err
	}
	var wire []ScheduleCalendarWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing schedule calendar", err)
	}
	ids := make([]int, len(wire))
	for i, w := range wire {
		ids[i] = w.ScheduleVehicleCalendarID
	}
	return ids, nil
}

// FetchBlockGroups retrieves the dispatch block-group data for a
// comma-joined list of schedule-vehicle-calendar IDs.
func (c *TranslocClient) FetchBlockGroups(ctx context.Context, calendarIDs []int) ([]BlockGroupWire, error) {
	if len(calendarIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(calendarIDs))
	for i, id := range calendarIDs {
		ids[i] = strconv.Itoa(id)
	}
	q := url.Values{"ids": []string{strings.Join(ids, ",")}}

	body, err := c.get(ctx, "/GetDispatchBlockGroupData", q)
	if err != nil {
		return nil, err
	}
	var wire []BlockGroupWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing block groups", err)
	}
	return wire, nil
}

// FetchDriverShifts retrieves the driver-shifts feed.
func (c *TranslocClient) FetchDriverShifts(ctx context.Context) ([]AssignedShiftWire, error) {
	body, err := c.get(ctx, "/GetAssignedShifts", nil)
	if err != nil {
		return nil, err
	}
	var wire []AssignedShiftWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing driver shifts", err)
	}
	return wire, nil
}
