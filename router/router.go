package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ridgeway-transit/opscore/auth"
	"github.com/ridgeway-transit/opscore/config"
	gwmw "github.com/ridgeway-transit/opscore/middleware"
	"github.com/ridgeway-transit/opscore/observability"
	"github.com/ridgeway-transit/opscore/server"
)

// New returns a configured chi Router with the full middleware chain and
// every route surface mounted. metricsHandler, if
// non-nil, is mounted at /metrics ahead of any auth/rate-limit middleware.
// tracer, if non-nil, wraps every route in an OpenTelemetry span.
func New(cfg *config.Config, appLogger zerolog.Logger, gate *auth.Gate, srv *server.Server, metricsHandler http.Handler, tracer trace.Tracer) http.Handler {
	r := chi.NewRouter()

	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	// --- Middleware chain (order matters) ---
	// 1. CORS — must be first so preflight responses succeed.
	r.Use(gwmw.CORSMiddleware([]string{"*"}))

	// 2. Security headers.
	r.Use(gwmw.SecurityHeadersMiddleware)

	// 3. Request ID injection.
	r.Use(gwmw.RequestIDMiddleware)

	// 4. Panic recovery.
	r.Use(chimw.Recoverer)

	// 5. Request logger.
	r.Use(mwRequestLogger(appLogger))

	// 5b. OpenTelemetry tracing.
	if tracer != nil {
		r.Use(observability.Middleware(tracer))
	}

	// 6. Dispatcher session resolution — attaches a Principal to the
	// context when a valid cookie is present; never itself rejects.
	r.Use(gate.Middleware)

	// 7. Rate limiting.
	rateLimiter := gwmw.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	r.Use(rateLimiter.Handler)

	// 8. Body size limit.
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Health (no auth) ---
	r.Get("/v1/health", srv.Health)
	r.Get("/healthz", srv.Health)

	// --- Route / vehicle / testmap surface ---
	r.Get("/v1/routes", srv.ListRoutes)
	r.Get("/v1/routes/{rid}", srv.GetRoute)
	r.Get("/v1/routes/{rid}/shape", srv.GetRouteShape)
	r.Get("/v1/routes/{rid}/vehicles_raw", srv.GetRouteVehiclesRaw)

	r.Get("/v1/vehicles", srv.ListVehicles)
	r.Get("/v1/vehicles_dropdown", srv.ListVehiclesDropdown)
	r.Get("/v1/vehicle_headings", srv.GetVehicleHeadings)

	r.Get("/v1/testmap/transloc", srv.GetTestmapTransloc)
	r.Get("/v1/testmap/transloc/vehicles", srv.GetTestmapTranslocVehicles)
	r.Get("/v1/testmap/transloc/metadata", srv.GetTestmapMetadata)

	r.Get("/v1/stream/testmap/vehicles", srv.StreamTestmapVehicles)
	r.Get("/v1/stream/api_calls", srv.StreamAPICalls)

	// --- Headway log ---
	r.Get("/api/headway", srv.GetHeadway)
	r.Get("/api/headway/export", srv.GetHeadwayExport)
	r.With(auth.RequireAuth).Post("/v1/headway/clear", srv.ClearHeadway)

	// --- Vehicle position replay ---
	r.With(auth.RequireAuth).Get("/v1/vehicle_log", srv.GetVehicleLog)

	// --- Dispatcher auth ---
	r.Post("/api/dispatcher/auth", srv.PostDispatcherAuth)
	r.Get("/api/dispatcher/auth", srv.GetDispatcherAuth)
	r.Post("/api/dispatcher/logout", srv.PostDispatcherLogout)

	// --- Service crew ---
	r.Post("/v1/servicecrew/reset/{bus}", srv.PostServiceCrewReset)

	// --- Replication ---
	r.Post("/sync", srv.PostSync)

	// --- Collaborator surface the core does not itself serve ---
	r.Get("/v1/tickets", srv.GetTickets)
	r.Get("/v1/eink/block_layout", srv.GetEinkBlockLayout)
	r.Get("/v1/system_notices", srv.GetSystemNotices)
	r.Post("/v1/push_subscriptions", srv.PostPushSubscription)
	r.Get("/v1/collaborator_config", srv.GetCollaboratorConfig)

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request_too_large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", r.Header.Get("X-Request-ID")).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
