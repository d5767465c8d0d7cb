// Package server implements the core's inbound HTTP surface: thin
// handlers that take a single reader pass under the shared fused-state
// lock, copy out what the response needs, and serialize.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/auth"
	"github.com/ridgeway-transit/opscore/config"
	"github.com/ridgeway-transit/opscore/headwaylog"
	"github.com/ridgeway-transit/opscore/mileage"
	"github.com/ridgeway-transit/opscore/state"
	"github.com/ridgeway-transit/opscore/stream"
	"github.com/ridgeway-transit/opscore/vehlog"
)

// Server bundles every dependency the HTTP surface reads from. Nothing
// here is mutated by a handler except through the owning package's own
// exported methods (Gate.Refresh, Accumulator.Reset, Store.Clear).
type Server struct {
	cfg *config.Config
	log zerolog.Logger

	shared   *state.Shared
	headway  *headwaylog.Store
	mileage  *mileage.Accumulator
	gate     *auth.Gate
	vehicles *stream.Broadcaster
	apiCalls *stream.APICallLog
	vlog     *vehlog.Logger

	// testmapJSON returns the current pre-materialized testmap vehicle
	// payload as raw (unwrapped) JSON bytes; fusion.Engine owns the value,
	// this is just a read accessor. May be nil before the first tick.
	testmapJSON func() []byte
}

// New constructs a Server wired to the running core's shared singletons.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	shared *state.Shared,
	headwayStore *headwaylog.Store,
	mileageAcc *mileage.Accumulator,
	gate *auth.Gate,
	vehicles *stream.Broadcaster,
	apiCalls *stream.APICallLog,
	vlog *vehlog.Logger,
	testmapJSON func() []byte,
) *Server {
	return &Server{
		cfg:         cfg,
		log:         log,
		shared:      shared,
		headway:     headwayStore,
		mileage:     mileageAcc,
		gate:        gate,
		vehicles:    vehicles,
		apiCalls:    apiCalls,
		vlog:        vlog,
		testmapJSON: testmapJSON,
	}
}

// sseFrame wraps already-marshaled JSON bytes as a single SSE frame,
// without a second marshal pass (stream.EncodeFrame is for values that
// haven't been serialized yet).
func sseFrame(raw []byte) []byte {
	return stream.EncodeFrameRaw(raw)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]interface{}{"error": reason})
}

func parseTimeParam(q string, fallback time.Time) time.Time {
	if q == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, q); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", q); err == nil {
		return t
	}
	return fallback
}

func splitCSVParam(q string) []string {
	if q == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(q); i++ {
		if i == len(q) || q[i] == ',' {
			if i > start {
				out = append(out, q[start:i])
			}
			start = i + 1
		}
	}
	return out
}
