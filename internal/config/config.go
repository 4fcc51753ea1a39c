// Package config loads application settings from environment variables,
// applies defaults, and validates the result before the server starts.
// It covers the HTTP server, logging, the store and cache backends, the
// nudge repository tuning knobs, edge rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "milo-nudge-service")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects and parameterizes the document store backend.
type StoreConfig struct {
	Backend     string // STORE_BACKEND: memory|postgres
	PostgresDSN string // POSTGRES_DSN when Backend is postgres
}

// CacheConfig selects and parameterizes the persisted cache tier.
type CacheConfig struct {
	Backend       string // CACHE_BACKEND: sqlite|redis
	SQLitePath    string // CACHE_PATH when Backend is sqlite
	RedisAddr     string // REDIS_ADDR when Backend is redis
	RedisPassword string // REDIS_PASSWORD
	RedisDB       int    // REDIS_DB
}

// NudgeConfig tunes the nudge repository: per-operation rate limiting,
// cache TTLs, sweep cadence, and the transient-failure retry policy.
type NudgeConfig struct {
	RateLimit     int           // NUDGE_RATE_LIMIT calls per operation per minute
	EntityTTL     time.Duration // NUDGE_ENTITY_TTL
	ListTTL       time.Duration // NUDGE_LIST_TTL
	ActiveTTL     time.Duration // NUDGE_ACTIVE_TTL
	SettingsTTL   time.Duration // NUDGE_SETTINGS_TTL
	TemplateTTL   time.Duration // NUDGE_TEMPLATE_TTL
	SweepInterval time.Duration // NUDGE_SWEEP_INTERVAL
	RetryAttempts int           // NUDGE_RETRY_ATTEMPTS
	RetryDelay    time.Duration // NUDGE_RETRY_DELAY initial backoff
	CachePrefix   string        // NUDGE_CACHE_PREFIX persisted-key namespace
}

// Config is the root of all runtime settings.
type Config struct {
	// HTTP server
	Port              string        // listener port, digits only
	ReadTimeout       time.Duration // READ_TIMEOUT
	ReadHeaderTimeout time.Duration // READ_HEADER_TIMEOUT
	WriteTimeout      time.Duration // WRITE_TIMEOUT
	IdleTimeout       time.Duration // IDLE_TIMEOUT
	MaxHeaderBytes    int           // MAX_HEADER_BYTES
	GinMode           string        // debug|release|test

	// Logging and docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // console writer instead of JSON lines
	SwaggerEnabled bool   // serve the Swagger UI route
	APIBasePath    string // prefix for all API routes

	// Data layer
	Store StoreConfig
	Cache CacheConfig
	Nudge NudgeConfig

	// Identity: fixed user for single-user deployments; when empty the
	// X-User-ID request header is consulted instead.
	DefaultUserID string // DEFAULT_USER_ID

	// HTTP edge rate limiting (per client, token bucket)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment, applies defaults and
// normalization, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Data layer
		Store: StoreConfig{
			Backend:     strings.ToLower(getenv("STORE_BACKEND", "memory")),
			PostgresDSN: getenv("POSTGRES_DSN", ""),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getenv("CACHE_BACKEND", "sqlite")),
			SQLitePath:    getenv("CACHE_PATH", "cache.db"),
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
		},
		Nudge: NudgeConfig{
			RateLimit:     getint("NUDGE_RATE_LIMIT", 100),
			EntityTTL:     getdur("NUDGE_ENTITY_TTL", 15*time.Minute),
			ListTTL:       getdur("NUDGE_LIST_TTL", 15*time.Minute),
			ActiveTTL:     getdur("NUDGE_ACTIVE_TTL", 5*time.Minute),
			SettingsTTL:   getdur("NUDGE_SETTINGS_TTL", time.Hour),
			TemplateTTL:   getdur("NUDGE_TEMPLATE_TTL", 24*time.Hour),
			SweepInterval: getdur("NUDGE_SWEEP_INTERVAL", 5*time.Minute),
			RetryAttempts: getint("NUDGE_RETRY_ATTEMPTS", 3),
			RetryDelay:    getdur("NUDGE_RETRY_DELAY", 200*time.Millisecond),
			CachePrefix:   getenv("NUDGE_CACHE_PREFIX", "nudge:"),
		},

		// Identity
		DefaultUserID: getenv("DEFAULT_USER_ID", ""),

		// HTTP edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "milo-nudge-service"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalize smooths accepted aliases before validation runs.
func (cfg *Config) normalize() {
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
}

// validate rejects settings the server cannot safely run with. Messages
// name the offending environment variable.
func (cfg *Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}

	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(cfg.Store.PostgresDSN) == "" {
			return errors.New("POSTGRES_DSN is required when STORE_BACKEND is postgres")
		}
	default:
		return errors.New("STORE_BACKEND must be one of: memory, postgres")
	}

	switch cfg.Cache.Backend {
	case "sqlite":
		if strings.TrimSpace(cfg.Cache.SQLitePath) == "" {
			return errors.New("CACHE_PATH must not be empty when CACHE_BACKEND is sqlite")
		}
	case "redis":
		if strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required when CACHE_BACKEND is redis")
		}
	default:
		return errors.New("CACHE_BACKEND must be one of: sqlite, redis")
	}

	n := cfg.Nudge
	if n.RateLimit < 1 {
		return errors.New("NUDGE_RATE_LIMIT must be >= 1")
	}
	if n.EntityTTL <= 0 || n.ListTTL <= 0 || n.ActiveTTL <= 0 || n.SettingsTTL <= 0 || n.TemplateTTL <= 0 {
		return errors.New("nudge cache TTLs must be positive durations")
	}
	if n.SweepInterval <= 0 {
		return errors.New("NUDGE_SWEEP_INTERVAL must be > 0")
	}
	if n.RetryAttempts < 1 {
		return errors.New("NUDGE_RETRY_ATTEMPTS must be >= 1")
	}
	if n.RetryDelay <= 0 {
		return errors.New("NUDGE_RETRY_DELAY must be > 0")
	}
	if strings.TrimSpace(n.CachePrefix) == "" {
		return errors.New("NUDGE_CACHE_PREFIX must not be empty")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return nil
}

// ---- env helpers ----

// lookup returns the value of k, treating empty as unset.
func lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func getenv(k, def string) string {
	if v, ok := lookup(k); ok {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v, ok := lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getfloat(k string, def float64) float64 {
	v, ok := lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getdur(k string, def time.Duration) time.Duration {
	v, ok := lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getbool(k string, def bool) bool {
	v, ok := lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath forces a leading '/' and strips the trailing one,
// keeping bare "/" intact.
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
