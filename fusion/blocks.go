package fusion

import (
	"context"
	"time"

	"github.com/ridgeway-transit/opscore/blocks"
	"github.com/ridgeway-transit/opscore/state"
	"github.com/ridgeway-transit/opscore/upstream"
)

// resolveBlocks runs block/driver resolution for every currently fused
// vehicle: it refreshes the cached block-group/driver-shift feeds
// (chained through the schedule calendar), builds the per-vehicle Trip
// windows and DriverIndex, and resolves each vehicle's current block and
// active drivers. OnDemand paratransit positions, when the integration is
// configured, are matched against their driver shifts and merged into the
// same output maps. It also feeds the mileage accumulator's per-block
// observation.
func (e *Engine) resolveBlocks(ctx context.Context, fused map[int]state.VehicleFused, routeIDToName map[int]string, serviceDate string, now time.Time) (map[int]string, map[int]blocks.VehicleDriverEntry) {
	rows, err := e.blockGroupsCache.Get(func() ([]upstream.BlockGroupWire, error) {
		return e.fetchBlockGroups(ctx, now)
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("fusion: block-group data unavailable this tick")
	}
	shiftWire, err := e.shiftsCache.Get(func() ([]upstream.AssignedShiftWire, error) {
		return e.client.FetchDriverShifts(ctx)
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("fusion: driver-shift data unavailable this tick")
	}

	trips := blocks.BuildTrips(rows)
	tripsByVehicle := make(map[int][]blocks.Trip)
	for _, t := range trips {
		tripsByVehicle[t.VehicleID] = append(tripsByVehicle[t.VehicleID], t)
		e.mileage.ObserveBlock(serviceDate, t.VehicleName, t.BlockLabel)
	}

	shifts := blocks.ParseShifts(shiftWire)
	driverIdx := blocks.NewDriverIndex(shifts)

	vehicleToBlock := make(map[int]string, len(fused))
	entries := make(map[int]blocks.VehicleDriverEntry, len(fused))
	for vid, fv := range fused {
		routeName := ""
		if fv.RouteID != nil {
			routeName = routeIDToName[*fv.RouteID]
		}
		entry, ok := e.resolver.Resolve(vid, fv.Name, tripsByVehicle[vid], routeName, driverIdx, now)
		if !ok {
			continue
		}
		vehicleToBlock[vid] = entry.Block
		entries[vid] = entry
	}

	if e.ondemand != nil {
		positions, err := e.ondemandCache.Get(func() ([]upstream.OnDemandPositionWire, error) {
			return e.ondemand.FetchPositions(ctx)
		})
		if err != nil {
			e.log.Warn().Err(err).Msg("fusion: ondemand positions unavailable this tick")
		}
		for _, entry := range blocks.ResolveOnDemand(positions, shifts, now) {
			vehicleToBlock[entry.VehicleID] = entry.Block
			entries[entry.VehicleID] = entry
		}
	}

	return vehicleToBlock, entries
}

// fetchBlockGroups chains the schedule-calendar lookup for today's local
// date into the dispatch block-group fetch.
func (e *Engine) fetchBlockGroups(ctx context.Context, now time.Time) ([]upstream.BlockGroupWire, error) {
	date := now.Local().Format("2006-01-02")
	calendarIDs, err := e.client.FetchScheduleCalendar(ctx, date)
	if err != nil {
		return nil, err
	}
	return e.client.FetchBlockGroups(ctx, calendarIDs)
}
