package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/ridgeway-transit/opscore/auth"
	"github.com/ridgeway-transit/opscore/blocks"
	"github.com/ridgeway-transit/opscore/config"
	"github.com/ridgeway-transit/opscore/fusion"
	"github.com/ridgeway-transit/opscore/headway"
	"github.com/ridgeway-transit/opscore/headwaylog"
	"github.com/ridgeway-transit/opscore/httpclient"
	"github.com/ridgeway-transit/opscore/logger"
	"github.com/ridgeway-transit/opscore/mileage"
	"github.com/ridgeway-transit/opscore/observability"
	"github.com/ridgeway-transit/opscore/redisclient"
	"github.com/ridgeway-transit/opscore/router"
	"github.com/ridgeway-transit/opscore/server"
	"github.com/ridgeway-transit/opscore/state"
	"github.com/ridgeway-transit/opscore/stream"
	"github.com/ridgeway-transit/opscore/upstream"
	"github.com/ridgeway-transit/opscore/vehlog"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("opscore starting")

	reg := prometheus.NewRegistry()
	httpc := httpclient.New(httpclient.DefaultConfig(), reg)

	tracerProvider := observability.NewTracerProvider(log)
	otel.SetTracerProvider(tracerProvider)
	tracer := observability.Tracer()

	apiCalls := stream.NewAPICallLog()
	recorder := func(method, url string, status int, took time.Duration, err error) {
		evt := stream.APICallEvent{
			Timestamp:  time.Now().UTC(),
			Upstream:   method,
			URL:        url,
			StatusCode: status,
			DurationMs: took.Milliseconds(),
		}
		if err != nil {
			evt.Error = err.Error()
		}
		if rErr := apiCalls.Record(evt); rErr != nil {
			log.Warn().Err(rErr).Msg("failed to publish api call event")
		}
	}

	translocClient := upstream.NewTranslocClient(httpc, cfg.TranslocBase, cfg.TranslocKey, log, recorder)
	roadClient := upstream.NewRoadMetadataClient(httpc, cfg.OverpassEP, log)
	ondemandClient := upstream.NewOnDemandClient(httpc, cfg.OnDemandBase, cfg.OnDemandCookie, log, recorder)

	approachSets, err := upstream.LoadApproachSets(cfg.DataDirs)
	if err != nil {
		log.Warn().Err(err).Msg("no approach-set geofence catalog found, continuing without it")
	}

	shared := state.NewShared()
	headwayStore := headwaylog.NewStore(cfg.DataDirs, log)
	mileageAcc := mileage.NewAccumulator(cfg.DataDirs, log)
	resolver := blocks.NewResolver()
	vehicles := stream.NewBroadcaster(0)
	vlog := vehlog.New(cfg.VehLogMinMoveM, cfg.VehLogRetention, log)

	tracker := headway.NewTracker(
		headwayStore,
		func(routeID string) string {
			rid, err := strconv.Atoi(routeID)
			if err != nil {
				return ""
			}
			name, _ := shared.RouteName(rid)
			return name
		},
		func(vehicleID int) string {
			block, _ := shared.Block(vehicleID)
			return block
		},
		log,
	)

	engine := fusion.New(cfg, log, translocClient, roadClient, ondemandClient, shared, mileageAcc, resolver, tracker, vehicles, approachSets)

	gate := auth.New(log, cfg.AuthEnv)

	var bridge *redisclient.Client
	if cfg.RedisURL != "" {
		bridge, err = redisclient.New(cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — SSE fan-out stays single-replica")
		} else if err := bridge.Ping(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — SSE fan-out stays single-replica")
			bridge = nil
		} else {
			log.Info().Msg("redis connected")
			vehicles.SetBridge(bridge, "opscore:vehicles")
			apiCalls.SetBridge(bridge, "opscore:api_calls")
			cancelVeh := bridge.Subscribe(context.Background(), "opscore:vehicles", vehicles.Deliver)
			cancelCalls := bridge.Subscribe(context.Background(), "opscore:api_calls", apiCalls.Deliver)
			defer cancelVeh()
			defer cancelCalls()
		}
	}

	srv := server.New(cfg, log, shared, headwayStore, mileageAcc, gate, vehicles, apiCalls, vlog, engine.TestmapJSON)
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	mux := router.New(cfg, log, gate, srv, metricsHandler, tracer)

	httpSrv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams are long-lived; bounded by GracefulTimeout on shutdown
		IdleTimeout:  120 * time.Second,
	}

	tickCtx, cancelTicks := context.WithCancel(context.Background())
	go runTickLoop(tickCtx, cfg, log, engine, mileageAcc)
	go runVehicleLogLoop(tickCtx, cfg, shared, vlog)
	go runAuthRefreshLoop(tickCtx, log, gate)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("opscore listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")
	cancelTicks()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("opscore stopped gracefully")
	}
	if bridge != nil {
		_ = bridge.Close()
	}
	if err := tracerProvider.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("tracer provider shutdown failed")
	}
}

// runTickLoop drives the fusion engine on cfg.VehRefresh, persisting
// mileage after each tick.
func runTickLoop(ctx context.Context, cfg *config.Config, log zerolog.Logger, engine *fusion.Engine, mileageAcc *mileage.Accumulator) {
	ticker := time.NewTicker(cfg.VehRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("fusion tick failed")
			}
			if err := mileageAcc.Persist(); err != nil {
				log.Warn().Err(err).Msg("failed to persist mileage")
			}
		}
	}
}

// runVehicleLogLoop samples the fused vehicle view into the position
// history logger on its own cadence, independent of the fusion tick.
func runVehicleLogLoop(ctx context.Context, cfg *config.Config, shared *state.Shared, vlog *vehlog.Logger) {
	ticker := time.NewTicker(cfg.VehLogIntervalS)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vlog.Observe(time.Now().UTC(), shared.AllVehicles())
		}
	}
}

// runAuthRefreshLoop rebuilds the dispatcher credential table from the
// environment every minute.
func runAuthRefreshLoop(ctx context.Context, log zerolog.Logger, gate *auth.Gate) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gate.Refresh(config.LoadAuthEnv())
		}
	}
}
