package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Optional: when set, /readyz also checks the shared job-state database
	// the relayed clients write to.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, FOODSCAN_RELAY_ALLOWED_ORIGINS MUST be a non-empty allowlist
	// without the "*" wildcard, and Origin headers become mandatory.
	RequireOriginAllowlist bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("FOODSCAN_HTTP_ADDR", "0.0.0.0:8090"),
		LogLevel:  EnvString("FOODSCAN_LOG_LEVEL", "info"),
		LogFormat: EnvString("FOODSCAN_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("FOODSCAN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FOODSCAN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FOODSCAN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FOODSCAN_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("FOODSCAN_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("FOODSCAN_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("FOODSCAN_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("FOODSCAN_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("FOODSCAN_READINESS_REQUIRE_DB", false),

		RequireOriginAllowlist: EnvBool("FOODSCAN_RELAY_REQUIRE_ORIGIN_ALLOWLIST", false),
	}
}
