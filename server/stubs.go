package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ridgeway-transit/opscore/mileage"
)

// PostServiceCrewReset handles POST /v1/servicecrew/reset/{bus}: zeroes the
// named bus's odometer baseline for the current service day.
func (s *Server) PostServiceCrewReset(w http.ResponseWriter, r *http.Request) {
	bus := chi.URLParam(r, "bus")
	if bus == "" {
		writeError(w, http.StatusBadRequest, "missing bus name")
		return
	}
	serviceDate := r.URL.Query().Get("service_date")
	if serviceDate == "" {
		serviceDate = mileage.ServiceDay(time.Now(), time.Local)
	}
	resetMiles, err := s.mileage.Reset(serviceDate, bus)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bus":          bus,
		"service_date": serviceDate,
		"reset_miles":  resetMiles,
	})
}

// notImplemented answers collaborator endpoints this instance does not
// itself own (ticketing, e-ink layouts, push subscriptions, system
// notices): they are served by a separate collaborator process and only
// reach this instance via /sync.
func notImplemented(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, "not served by this instance")
}

func (s *Server) GetTickets(w http.ResponseWriter, r *http.Request)             { notImplemented(w, r) }
func (s *Server) GetEinkBlockLayout(w http.ResponseWriter, r *http.Request)     { notImplemented(w, r) }
func (s *Server) GetSystemNotices(w http.ResponseWriter, r *http.Request)       { notImplemented(w, r) }
func (s *Server) PostPushSubscription(w http.ResponseWriter, r *http.Request)   { notImplemented(w, r) }
func (s *Server) GetCollaboratorConfig(w http.ResponseWriter, r *http.Request)  { notImplemented(w, r) }
