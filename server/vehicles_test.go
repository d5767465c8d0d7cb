package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ridgeway-transit/opscore/state"
)

func seedOneRouteWithRouteID(shared *state.Shared) {
	rid := 5
	shared.ApplyTick(state.FusionResult{
		Routes: map[int]state.Route{
			rid: {RouteID: rid, Description: "Inner Loop", Color: "#ff0000", TotalLengthM: 4200},
		},
		VehiclesByRoute: map[int][]state.VehicleFused{
			rid: {{VehicleRaw: state.VehicleRaw{VehicleID: 101, Name: "Bus 1", RouteID: &rid}}},
		},
		RouteIDToName:  map[int]string{rid: "Inner Loop"},
		ActiveRouteIDs: map[int]bool{rid: true},
		RouteLastSeen:  map[int]time.Time{},
		Stops:          state.NewStopIndex(nil),
		Capacities:     map[int]state.Capacity{},
		StopEstimates:  map[int][]state.StopEstimate{},
		VehicleToBlock: map[int]string{},
	})
}

func TestListVehiclesDecoratesRouteNameAndBlock(t *testing.T) {
	srv, shared := newTestServer(t)
	seedOneRouteWithRouteID(shared)

	req := httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
	rec := httptest.NewRecorder()
	srv.ListVehicles(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"route_name":"Inner Loop"`) {
		t.Fatalf("expected decorated route_name, got: %s", body)
	}
}

func TestListVehiclesDropdownMinimalFields(t *testing.T) {
	srv, shared := newTestServer(t)
	seedOneRouteWithRouteID(shared)

	req := httptest.NewRequest(http.MethodGet, "/v1/vehicles_dropdown", nil)
	rec := httptest.NewRecorder()
	srv.ListVehiclesDropdown(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"vehicle_id":101`) || !strings.Contains(body, `"name":"Bus 1"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestGetVehicleHeadingsEmptyWhenNoFile(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/vehicle_headings", nil)
	rec := httptest.NewRecorder()
	srv.GetVehicleHeadings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("expected empty object, got: %s", rec.Body.String())
	}
}

func TestDecorateIncludesCapacityAndEstimates(t *testing.T) {
	srv, shared := newTestServer(t)
	rid := 5
	shared.ApplyTick(state.FusionResult{
		Routes: map[int]state.Route{
			rid: {RouteID: rid, Description: "Inner Loop", Color: "#ff0000", TotalLengthM: 4200},
		},
		VehiclesByRoute: map[int][]state.VehicleFused{
			rid: {{VehicleRaw: state.VehicleRaw{VehicleID: 101, Name: "Bus 1", RouteID: &rid}}},
		},
		RouteIDToName:  map[int]string{rid: "Inner Loop"},
		ActiveRouteIDs: map[int]bool{rid: true},
		RouteLastSeen:  map[int]time.Time{},
		Stops:          state.NewStopIndex(nil),
		Capacities:     map[int]state.Capacity{101: {VehicleID: 101, Capacity: 40, CurrentOccupation: 10}},
		StopEstimates:  map[int][]state.StopEstimate{},
		VehicleToBlock: map[int]string{101: "BLOCK-1"},
	})

	view := srv.decorate(shared.AllVehicles()[0])
	if view.Capacity == nil || view.Capacity.CurrentOccupation != 10 {
		t.Fatalf("expected capacity to be attached, got: %+v", view.Capacity)
	}
	if view.Block != "BLOCK-1" {
		t.Fatalf("expected block BLOCK-1, got %q", view.Block)
	}
	if view.RouteName != "Inner Loop" {
		t.Fatalf("expected route name Inner Loop, got %q", view.RouteName)
	}
}
