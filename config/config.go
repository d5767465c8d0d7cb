package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration values, loaded from the
// environment.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Upstream AVL/TransLoc-style provider
	TranslocBase string
	TranslocKey  string
	OverpassEP   string

	// OnDemand paratransit provider (cookie-authenticated); empty base
	// disables the integration.
	OnDemandBase   string
	OnDemandCookie string

	// Poller intervals
	VehRefresh   time.Duration
	RouteRefresh time.Duration
	BlockRefresh time.Duration

	// Fusion tuning
	StaleFixS               time.Duration
	RouteGraceS             time.Duration
	VehicleStaleThresholdS  time.Duration
	EMAAlpha                float64
	MinSpeedFloorMps        float64
	MaxSpeedCeilMps         float64
	HeadingJitterM          float64

	// Persistence
	DataDirs []string

	// Vehicle position logger
	VehLogIntervalS  time.Duration
	VehLogMinMoveM   float64
	VehLogRetention  time.Duration

	// Sync / replication
	SyncSecret string
	RedisURL   string

	// Dispatcher auth cookie
	DispatchCookieMaxAge time.Duration
	DispatchCookieSecure bool

	// Operator label -> secret table source, re-derived on refresh; see auth package.
	AuthEnv map[string]string

	// Body limits / rate limiting
	MaxBodyBytes     int64
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int

	LogLevel string
}

// Load reads configuration from environment variables and an optional
// .env file, applying the documented defaults.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            getEnv("GATEWAY_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)) * time.Second,

		TranslocBase: getEnv("TRANSLOC_BASE", ""),
		TranslocKey:  getEnv("TRANSLOC_KEY", ""),
		OverpassEP:   getEnv("OVERPASS_EP", "https://overpass-api.de/api/interpreter"),

		OnDemandBase:   getEnv("ONDEMAND_BASE", ""),
		OnDemandCookie: getEnv("ONDEMAND_COOKIE", ""),

		VehRefresh:   time.Duration(getEnvInt("VEH_REFRESH_S", 5)) * time.Second,
		RouteRefresh: time.Duration(getEnvInt("ROUTE_REFRESH_S", 60)) * time.Second,
		BlockRefresh: time.Duration(getEnvInt("BLOCK_REFRESH_S", 30)) * time.Second,

		StaleFixS:              time.Duration(getEnvInt("STALE_FIX_S", 90)) * time.Second,
		RouteGraceS:            time.Duration(getEnvInt("ROUTE_GRACE_S", 60)) * time.Second,
		VehicleStaleThresholdS: time.Duration(getEnvInt("VEHICLE_STALE_THRESHOLD_S", 3600)) * time.Second,
		EMAAlpha:               getEnvFloat("EMA_ALPHA", 0.40),
		MinSpeedFloorMps:       getEnvFloat("MIN_SPEED_FLOOR", 1.2),
		MaxSpeedCeilMps:        getEnvFloat("MAX_SPEED_CEIL", 22.0),
		HeadingJitterM:         getEnvFloat("HEADING_JITTER_M", 3.0),

		DataDirs: splitNonEmpty(getEnv("DATA_DIRS", "/data"), ":"),

		VehLogIntervalS: time.Duration(getEnvInt("VEH_LOG_INTERVAL_S", 4)) * time.Second,
		VehLogMinMoveM:  getEnvFloat("VEH_LOG_MIN_MOVE_M", 3),
		VehLogRetention: time.Duration(getEnvInt("VEH_LOG_RETENTION_MS", 7*24*3600*1000)) * time.Millisecond,

		SyncSecret: getEnv("SYNC_SECRET", ""),
		RedisURL:   getEnv("REDIS_URL", ""),

		DispatchCookieMaxAge: time.Duration(getEnvInt("DISPATCH_COOKIE_MAX_AGE", 7*24*3600)) * time.Second,
		DispatchCookieSecure: getEnvBool("DISPATCH_COOKIE_SECURE", false),

		MaxBodyBytes:     int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 1*1024*1024)),
		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 600),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 50),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.AuthEnv = LoadAuthEnv()
	return cfg
}

// LoadAuthEnv rebuilds the label->secret environment snapshot that the
// auth package's table is derived from. Recognizes any `<LABEL>_PASS` or
// `<LABEL>_CAT_PASS` environment variable.
func LoadAuthEnv() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		if strings.HasSuffix(key, "_PASS") {
			out[key] = parts[1]
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		out = []string{"/data"}
	}
	return out
}
