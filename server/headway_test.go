package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ridgeway-transit/opscore/headway"
)

func TestGetHeadwayReturnsLoggedEvents(t *testing.T) {
	srv, _ := newTestServer(t)

	now := time.Now().UTC()
	hwSeconds := 300.0
	if err := srv.headway.Append(headway.HeadwayEvent{
		Timestamp:              now,
		RouteID:                "5",
		StopID:                 "stop-a",
		VehicleID:              101,
		EventType:              headway.EventArrival,
		HeadwayArrivalArrivalS: &hwSeconds,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/headway?start="+now.Add(-time.Hour).Format(time.RFC3339)+"&end="+now.Add(time.Hour).Format(time.RFC3339), nil)
	rec := httptest.NewRecorder()
	srv.GetHeadway(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"RouteID":"5"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestClearHeadwayRemovesEvents(t *testing.T) {
	srv, _ := newTestServer(t)

	now := time.Now().UTC()
	if err := srv.headway.Append(headway.HeadwayEvent{
		Timestamp: now,
		RouteID:   "5",
		StopID:    "stop-a",
		VehicleID: 101,
		EventType: headway.EventArrival,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/headway/clear", nil)
	rec := httptest.NewRecorder()
	srv.ClearHeadway(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	events, err := srv.headway.Query(now.Add(-time.Hour), now.Add(time.Hour), nil, nil)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after clear, got %d", len(events))
	}
}

func TestGetHeadwayExportPairsArrivalAndDeparture(t *testing.T) {
	srv, _ := newTestServer(t)

	base := time.Now().UTC().Truncate(time.Second)
	arrHw := 120.0
	dwell := 30.0
	if err := srv.headway.Append(headway.HeadwayEvent{
		Timestamp:              base,
		RouteID:                "5",
		StopID:                 "stop-a",
		VehicleID:              101,
		EventType:              headway.EventArrival,
		HeadwayArrivalArrivalS: &arrHw,
	}); err != nil {
		t.Fatalf("append arrival failed: %v", err)
	}
	if err := srv.headway.Append(headway.HeadwayEvent{
		Timestamp: base.Add(30 * time.Second),
		RouteID:   "5",
		StopID:    "stop-a",
		VehicleID: 101,
		EventType: headway.EventDeparture,
		DwellS:    &dwell,
	}); err != nil {
		t.Fatalf("append departure failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/headway/export?start="+base.Add(-time.Hour).Format(time.RFC3339)+"&end="+base.Add(time.Hour).Format(time.RFC3339), nil)
	rec := httptest.NewRecorder()
	srv.GetHeadwayExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ct := rec.Header().Get("Content-Type")
	if !strings.Contains(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	body := rec.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + one paired row, got %d lines: %q", len(lines), body)
	}
	if !strings.Contains(lines[1], "00:00:30") {
		t.Fatalf("expected formatted dwell in row: %q", lines[1])
	}
}
