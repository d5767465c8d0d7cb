// Package fusion implements the AVL-tick join: it reads
// the latest vehicle positions alongside the cached route, stop, capacity,
// and roster data, projects each fresh vehicle onto its route polyline,
// derives heading/speed/direction, rebuilds the fused vehicle-by-route
// view, updates mileage and the block/driver map, and feeds the headway
// tracker and the SSE vehicle stream.
package fusion

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/blocks"
	"github.com/ridgeway-transit/opscore/cache"
	"github.com/ridgeway-transit/opscore/config"
	"github.com/ridgeway-transit/opscore/geo"
	"github.com/ridgeway-transit/opscore/headway"
	"github.com/ridgeway-transit/opscore/mileage"
	"github.com/ridgeway-transit/opscore/persist"
	"github.com/ridgeway-transit/opscore/state"
	"github.com/ridgeway-transit/opscore/stream"
	"github.com/ridgeway-transit/opscore/upstream"
)

// dirEpsMps is the along-route-speed deadband below which a vehicle's
// direction sign is carried from the prior tick rather than flipped.
const dirEpsMps = 0.15

// headingFile is the persisted last-known-heading table.
const headingFile = "vehicle_headings.json"

// roadMetaTTL is long enough that segment speed caps are effectively
// fetched once per distinct polyline and never refreshed underneath an
// unchanged route.
const roadMetaTTL = 6 * time.Hour

// headingRecord is the on-disk shape of one vehicle_headings.json entry.
type headingRecord struct {
	Heading   float64 `json:"heading"`
	UpdatedAt int64   `json:"updated_at"`
}

// roadMeta is the cached Overpass-derived segment metadata for one route
// polyline.
type roadMeta struct {
	SpeedCapsMps []float64
	RoadNames    []string
}

// Engine owns every piece of state a fusion tick reads across ticks but
// that does not belong in the shared read view: prior fused vehicles (for
// heading/speed continuity), persisted headings, and the road-metadata
// cache keyed by polyline hash.
type Engine struct {
	cfg      *config.Config
	log      zerolog.Logger
	client   *upstream.TranslocClient
	road     *upstream.RoadMetadataClient
	ondemand *upstream.OnDemandClient // nil when the integration is disabled

	shared   *state.Shared
	mileage  *mileage.Accumulator
	resolver *blocks.Resolver
	tracker  *headway.Tracker
	vehicles *stream.Broadcaster

	routesCache      *cache.TTLCache[[]state.Route]
	catalogCache     *cache.TTLCache[[]upstream.RouteCatalogWire]
	stopsCache       *cache.TTLCache[[]state.Stop]
	capacitiesCache  *cache.TTLCache[[]state.Capacity]
	blockGroupsCache *cache.TTLCache[[]upstream.BlockGroupWire]
	shiftsCache      *cache.TTLCache[[]upstream.AssignedShiftWire]
	ondemandCache    *cache.TTLCache[[]upstream.OnDemandPositionWire]
	estimates        *cache.KeyedCache[string, *cache.SWRCache[[]state.StopEstimate]]
	roadMeta         *cache.KeyedCache[string, *cache.TTLCache[roadMeta]]

	approachSets map[string][]state.ApproachSet

	prevFused     map[int]state.VehicleFused
	routeLastSeen map[int]time.Time
	headings      map[int]headingRecord

	testmapMu   sync.RWMutex
	testmapJSON []byte
}

// New constructs a fusion Engine. approachSets is the static geofence
// catalog (upstream.LoadApproachSets), merged onto raw stops every tick
// before MergeStops runs.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	client *upstream.TranslocClient,
	road *upstream.RoadMetadataClient,
	ondemand *upstream.OnDemandClient,
	shared *state.Shared,
	mileageAcc *mileage.Accumulator,
	resolver *blocks.Resolver,
	tracker *headway.Tracker,
	vehicles *stream.Broadcaster,
	approachSets map[string][]state.ApproachSet,
) *Engine {
	e := &Engine{
		cfg:      cfg,
		log:      log,
		client:   client,
		road:     road,
		ondemand: ondemand,
		shared:   shared,
		mileage:  mileageAcc,
		resolver: resolver,
		tracker:  tracker,
		vehicles: vehicles,

		routesCache:      cache.NewTTLCache[[]state.Route](cfg.RouteRefresh),
		catalogCache:     cache.NewTTLCache[[]upstream.RouteCatalogWire](cfg.RouteRefresh),
		stopsCache:       cache.NewTTLCache[[]state.Stop](cfg.RouteRefresh),
		capacitiesCache:  cache.NewTTLCache[[]state.Capacity](cfg.VehRefresh),
		blockGroupsCache: cache.NewTTLCache[[]upstream.BlockGroupWire](cfg.BlockRefresh),
		shiftsCache:      cache.NewTTLCache[[]upstream.AssignedShiftWire](cfg.BlockRefresh),
		ondemandCache:    cache.NewTTLCache[[]upstream.OnDemandPositionWire](cfg.BlockRefresh),

		approachSets: approachSets,

		prevFused:     make(map[int]state.VehicleFused),
		routeLastSeen: make(map[int]time.Time),
		headings:      make(map[int]headingRecord),
	}
	e.estimates = cache.NewKeyedCache[string, *cache.SWRCache[[]state.StopEstimate]](256, func() *cache.SWRCache[[]state.StopEstimate] {
		return cache.NewSWRCache[[]state.StopEstimate](cfg.VehRefresh, log)
	}, log)
	e.roadMeta = cache.NewKeyedCache[string, *cache.TTLCache[roadMeta]](256, func() *cache.TTLCache[roadMeta] {
		return cache.NewTTLCache[roadMeta](roadMetaTTL)
	}, log)

	var loaded map[int]headingRecord
	if found, err := persist.ReadJSONFirst(cfg.DataDirs, headingFile, &loaded); err == nil && found {
		e.headings = loaded
	}
	return e
}

// TestmapJSON returns the raw (unwrapped) JSON bytes of the most recently
// built testmap vehicle payload, or nil before the first tick completes.
// The HTTP surface uses this both to serve the plain-JSON endpoint and to
// build an SSE on-connect snapshot frame without re-marshaling.
func (e *Engine) TestmapJSON() []byte {
	e.testmapMu.RLock()
	defer e.testmapMu.RUnlock()
	return e.testmapJSON
}

// Tick runs one complete fusion pass. A fetch or join failure aborts the
// tick, records last_error in shared state, and leaves the previous fused
// view serving; headway processing at the end is best-effort and never
// fails the tick.
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.tick(ctx); err != nil {
		e.shared.RecordError(err)
		return err
	}
	e.shared.ClearError()
	return nil
}

func (e *Engine) tick(ctx context.Context) error {
	t0 := time.Now().UTC()

	routes, err := e.routesCache.Get(func() ([]state.Route, error) { return e.client.FetchRoutes(ctx) })
	if err != nil {
		return fmt.Errorf("fusion: fetching routes: %w", err)
	}
	rawStops, err := e.stopsCache.Get(func() ([]state.Stop, error) { return e.client.FetchStops(ctx) })
	if err != nil {
		return fmt.Errorf("fusion: fetching stops: %w", err)
	}
	capacities, err := e.capacitiesCache.Get(func() ([]state.Capacity, error) { return e.client.FetchCapacities(ctx) })
	if err != nil {
		e.log.Warn().Err(err).Msg("fusion: capacities unavailable this tick, continuing without them")
		capacities = nil
	}
	vehiclesRaw, err := e.client.FetchVehicles(ctx, t0)
	if err != nil {
		return fmt.Errorf("fusion: fetching vehicles: %w", err)
	}

	routeByID := make(map[int]state.Route, len(routes))
	for _, r := range routes {
		routeByID[r.RouteID] = r
	}

	stopsWithApproach := upstream.ApplyApproachSets(rawStops, e.approachSets)
	mergedStops := state.MergeStops(stopsWithApproach)
	stopIndex := state.NewStopIndex(mergedStops)

	routeIDToName := make(map[int]string, len(routes))
	for _, r := range routes {
		routeIDToName[r.RouteID] = r.Name()
	}

	fresh, freshAll := splitFresh(vehiclesRaw, t0, e.cfg.StaleFixS)

	for _, v := range fresh {
		e.routeLastSeen[*v.RouteID] = t0
	}
	activeRouteIDs := make(map[int]bool)
	for rid, seenAt := range e.routeLastSeen {
		if t0.Sub(seenAt) <= e.cfg.RouteGraceS {
			activeRouteIDs[rid] = true
		}
	}

	// A route the provider's catalog marks inactive is dropped without
	// waiting out its grace window.
	if catalog, err := e.catalogCache.Get(func() ([]upstream.RouteCatalogWire, error) {
		return e.client.FetchRouteCatalog(ctx)
	}); err != nil {
		e.log.Warn().Err(err).Msg("fusion: routes catalog unavailable this tick")
	} else {
		for _, entry := range catalog {
			if !entry.IsActive {
				delete(activeRouteIDs, entry.RouteID)
				delete(e.routeLastSeen, entry.RouteID)
			}
		}
	}

	for rid := range activeRouteIDs {
		r, ok := routeByID[rid]
		if !ok {
			continue
		}
		caps, names, err := e.segmentMetadata(ctx, r)
		if err != nil {
			e.log.Warn().Err(err).Int("route_id", rid).Msg("fusion: road metadata unavailable, using defaults")
			continue
		}
		r.SegmentSpeedCapsMps = caps
		r.SegmentRoadNames = names
		routeByID[rid] = r
	}

	vehiclesByRoute := make(map[int][]state.VehicleFused)
	fusedByID := make(map[int]state.VehicleFused, len(fresh))
	for _, v := range fresh {
		route, ok := routeByID[*v.RouteID]
		if !ok || len(route.Polyline) < 2 {
			continue
		}
		prev, hasPrev := e.prevFused[v.VehicleID]
		persistedHeading, hasPersisted := e.headings[v.VehicleID]
		fv := e.fuseVehicle(v, route, prev, hasPrev, persistedHeading.Heading, hasPersisted)
		fusedByID[v.VehicleID] = fv
		vehiclesByRoute[*v.RouteID] = append(vehiclesByRoute[*v.RouteID], fv)
	}
	for rid := range vehiclesByRoute {
		sort.Slice(vehiclesByRoute[rid], func(i, j int) bool {
			return vehiclesByRoute[rid][i].VehicleID < vehiclesByRoute[rid][j].VehicleID
		})
	}
	e.prevFused = fusedByID

	for vid, fv := range fusedByID {
		e.headings[vid] = headingRecord{Heading: fv.HeadingDeg, UpdatedAt: t0.UnixMilli()}
	}
	if err := persist.WriteJSONAll(e.cfg.DataDirs, headingFile, e.headings, e.log); err != nil {
		e.log.Warn().Err(err).Msg("fusion: failed to persist vehicle headings")
	}

	serviceDate := mileage.ServiceDay(t0, time.Local)
	for _, v := range freshAll {
		e.mileage.Update(serviceDate, v.Name, v.Lat, v.Lon)
	}

	vehicleToBlock, driverEntries := e.resolveBlocks(ctx, fusedByID, routeIDToName, serviceDate, t0)

	estimates := e.fetchEstimates(ctx, fusedByID)

	snapshots := make([]headway.Snapshot, 0, len(fusedByID))
	for _, fv := range fusedByID {
		if fv.RouteID == nil {
			continue
		}
		block := vehicleToBlock[fv.VehicleID]
		snapshots = append(snapshots, headway.Snapshot{
			VehicleID:   fv.VehicleID,
			VehicleName: fv.Name,
			Lat:         fv.Lat,
			Lon:         fv.Lon,
			RouteID:     fmt.Sprintf("%d", *fv.RouteID),
			Block:       block,
			Timestamp:   t0,
		})
	}

	result := state.FusionResult{
		Routes:          routeByID,
		VehiclesByRoute: vehiclesByRoute,
		RouteIDToName:   routeIDToName,
		ActiveRouteIDs:  activeRouteIDs,
		RouteLastSeen:   cloneTimeMap(e.routeLastSeen),
		Stops:           stopIndex,
		Capacities:      indexCapacities(capacities),
		StopEstimates:   estimates,
		VehicleToBlock:  vehicleToBlock,
	}
	e.shared.ApplyTick(result)

	body, err := json.Marshal(buildTestmapPayload(fusedByID, indexCapacities(capacities), estimates, routeIDToName, driverEntries))
	if err == nil {
		e.testmapMu.Lock()
		e.testmapJSON = body
		e.testmapMu.Unlock()
		if e.vehicles != nil {
			e.vehicles.Publish(stream.EncodeFrameRaw(body))
		}
	}

	e.tracker.UpdateStops(mergedStops)
	e.tracker.ProcessSnapshots(snapshots, t0)

	return nil
}

// splitFresh partitions raw vehicle records: fresh
// requires both a live fix and a non-null, non-zero route id; freshAll
// only requires a live fix.
func splitFresh(raw []state.VehicleRaw, now time.Time, staleFixS time.Duration) (fresh, freshAll []state.VehicleRaw) {
	for _, v := range raw {
		age := now.Sub(v.ProviderTimestamp)
		if age < 0 {
			age = 0
		}
		if age > staleFixS {
			continue
		}
		freshAll = append(freshAll, v)
		if v.RouteID != nil && *v.RouteID != 0 {
			fresh = append(fresh, v)
		}
	}
	return fresh, freshAll
}

func indexCapacities(caps []state.Capacity) map[int]state.Capacity {
	out := make(map[int]state.Capacity, len(caps))
	for _, c := range caps {
		out[c.VehicleID] = c
	}
	return out
}

func cloneTimeMap(m map[int]time.Time) map[int]time.Time {
	out := make(map[int]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// segmentMetadata fetches (and caches, by polyline hash) the Overpass road
// metadata for a route's polyline.
func (e *Engine) segmentMetadata(ctx context.Context, r state.Route) ([]float64, []string, error) {
	hash := polylineHash(r.EncodedPolyline)
	entry := e.roadMeta.Entry(hash)
	m, err := entry.Get(func() (roadMeta, error) {
		pts := make([]geo.Point, len(r.Polyline))
		for i, p := range r.Polyline {
			pts[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
		}
		caps, names, err := e.road.FetchSegmentMetadata(ctx, pts)
		if err != nil {
			return roadMeta{}, err
		}
		return roadMeta{SpeedCapsMps: caps, RoadNames: names}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return m.SpeedCapsMps, m.RoadNames, nil
}

func polylineHash(encoded string) string {
	sum := sha1.Sum([]byte(encoded))
	return hex.EncodeToString(sum[:])
}

// fetchEstimates batches a stop-estimate fetch across every fused
// vehicle, scoped through a per-vehicle-id-list SWR cache entry.
func (e *Engine) fetchEstimates(ctx context.Context, fused map[int]state.VehicleFused) map[int][]state.StopEstimate {
	ids := make([]int, 0, len(fused))
	for vid := range fused {
		ids = append(ids, vid)
	}
	sort.Ints(ids)
	if len(ids) == 0 {
		return map[int][]state.StopEstimate{}
	}

	key := fmt.Sprint(ids)
	entry := e.estimates.Entry(key)
	list, _ := entry.Get(func() ([]state.StopEstimate, error) {
		return e.client.FetchEstimates(ctx, ids)
	})

	out := make(map[int][]state.StopEstimate)
	for _, est := range list {
		out[est.VehicleID] = append(out[est.VehicleID], est)
	}
	return out
}
