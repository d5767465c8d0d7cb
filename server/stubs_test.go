package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestPostServiceCrewResetSetsBaseline(t *testing.T) {
	srv, _ := newTestServer(t)
	serviceDate := "2026-07-30"
	srv.mileage.Update(serviceDate, "Bus 42", 40.0, -83.0)
	srv.mileage.Update(serviceDate, "Bus 42", 40.01, -83.0)

	r := chi.NewRouter()
	r.Post("/v1/servicecrew/reset/{bus}", srv.PostServiceCrewReset)

	req := httptest.NewRequest(http.MethodPost, "/v1/servicecrew/reset/Bus%2042?service_date="+serviceDate, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	bd, ok := srv.mileage.Get(serviceDate, "42")
	if !ok {
		t.Fatalf("expected bus day record to exist")
	}
	if bd.DisplayMiles() != 0 {
		t.Fatalf("expected display miles to be zero after reset, got %f", bd.DisplayMiles())
	}
}

func TestPostServiceCrewResetUnknownBusReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	r := chi.NewRouter()
	r.Post("/v1/servicecrew/reset/{bus}", srv.PostServiceCrewReset)

	req := httptest.NewRequest(http.MethodPost, "/v1/servicecrew/reset/Bus%209", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCollaboratorStubsReturn501(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []func(http.ResponseWriter, *http.Request){
		srv.GetTickets,
		srv.GetEinkBlockLayout,
		srv.GetSystemNotices,
		srv.PostPushSubscription,
		srv.GetCollaboratorConfig,
	}
	for _, h := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whatever", nil)
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("expected 501, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not served by this instance") {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	}
}
