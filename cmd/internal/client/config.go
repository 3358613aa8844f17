package client

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends for the durable job-status store.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Broadcast transports for the live job-status path.
const (
	BroadcastNone     = "none"
	BroadcastPostgres = "postgres"
	BroadcastRedis    = "redis"
	BroadcastRelay    = "relay"
)

// Config is the client runtime configuration, loaded from a YAML file and
// overridable through FOODSCAN_* environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Session   SessionConfig   `yaml:"session"`
	JobStatus JobStatusConfig `yaml:"job_status"`
	Log       LogConfig       `yaml:"log"`
}

type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	RefreshPath string        `yaml:"refresh_path,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

type SessionConfig struct {
	// SnapshotPath is where the sealed session snapshot lives. Empty keeps
	// the session in memory only.
	SnapshotPath string `yaml:"snapshot_path,omitempty"`
	// KeyHex is the hex-encoded 32-byte sealing key. Usually injected via
	// FOODSCAN_SESSION_KEY rather than written to the file.
	KeyHex string `yaml:"key_hex,omitempty"`
}

type JobStatusConfig struct {
	Storage   string `yaml:"storage"`
	Broadcast string `yaml:"broadcast,omitempty"`

	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	DatabaseURL string `yaml:"database_url,omitempty"`
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	RelayURL    string `yaml:"relay_url,omitempty"`

	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{RefreshPath: "/auth/refresh", Timeout: 30 * time.Second},
		JobStatus: JobStatusConfig{
			Storage:      StorageMemory,
			Broadcast:    BroadcastNone,
			PollInterval: 2 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result. A missing file is not an error: defaults plus
// environment overrides apply.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.applyEnv()
			if errs := cfg.Validate(); len(errs) > 0 {
				return cfg, fmt.Errorf("invalid config (env only): %s", strings.Join(errs, "; "))
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes YAML strictly (unknown keys are errors), applies environment
// overrides, and validates.
func Parse(data []byte, source string) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse YAML in %q: %w", source, err)
	}

	cfg.applyEnv()

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config in %q: %s", source, strings.Join(errs, "; "))
	}
	return cfg, nil
}

// applyEnv lets deploy environments override file values without editing the
// file. Environment wins over YAML.
func (cfg *Config) applyEnv() {
	overrideString(&cfg.API.BaseURL, "FOODSCAN_API_BASE_URL")
	overrideString(&cfg.API.RefreshPath, "FOODSCAN_API_REFRESH_PATH")
	overrideDuration(&cfg.API.Timeout, "FOODSCAN_API_TIMEOUT")

	overrideString(&cfg.Session.SnapshotPath, "FOODSCAN_SESSION_SNAPSHOT")
	overrideString(&cfg.Session.KeyHex, "FOODSCAN_SESSION_KEY")

	overrideString(&cfg.JobStatus.Storage, "FOODSCAN_JOBSTATUS_STORAGE")
	overrideString(&cfg.JobStatus.Broadcast, "FOODSCAN_JOBSTATUS_BROADCAST")
	overrideString(&cfg.JobStatus.SQLitePath, "FOODSCAN_JOBSTATUS_SQLITE_PATH")
	overrideString(&cfg.JobStatus.DatabaseURL, "FOODSCAN_DATABASE_URL")
	overrideString(&cfg.JobStatus.RedisAddr, "FOODSCAN_REDIS_ADDR")
	overrideString(&cfg.JobStatus.RelayURL, "FOODSCAN_RELAY_URL")
	overrideDuration(&cfg.JobStatus.PollInterval, "FOODSCAN_JOBSTATUS_POLL_INTERVAL")

	overrideString(&cfg.Log.Level, "FOODSCAN_LOG_LEVEL")
}

// Validate returns a list of problems; an empty list means the config is usable.
func (cfg Config) Validate() []string {
	var errs []string

	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		errs = append(errs, "api.base_url is required")
	}

	if cfg.Session.SnapshotPath != "" {
		key, err := hex.DecodeString(strings.TrimSpace(cfg.Session.KeyHex))
		if err != nil {
			errs = append(errs, "session.key_hex is not valid hex")
		} else if len(key) != 32 {
			errs = append(errs, fmt.Sprintf("session.key_hex must decode to 32 bytes, got %d", len(key)))
		}
	}

	switch cfg.JobStatus.Storage {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(cfg.JobStatus.SQLitePath) == "" {
			errs = append(errs, "job_status.sqlite_path is required for sqlite storage")
		}
	case StoragePostgres:
		if strings.TrimSpace(cfg.JobStatus.DatabaseURL) == "" {
			errs = append(errs, "job_status.database_url is required for postgres storage")
		}
	case StorageRedis:
		if strings.TrimSpace(cfg.JobStatus.RedisAddr) == "" {
			errs = append(errs, "job_status.redis_addr is required for redis storage")
		}
	default:
		errs = append(errs, fmt.Sprintf("job_status.storage %q is not one of memory, sqlite, postgres, redis", cfg.JobStatus.Storage))
	}

	switch cfg.JobStatus.Broadcast {
	case BroadcastNone:
	case BroadcastPostgres:
		if strings.TrimSpace(cfg.JobStatus.DatabaseURL) == "" {
			errs = append(errs, "job_status.database_url is required for postgres broadcast")
		}
	case BroadcastRedis:
		if strings.TrimSpace(cfg.JobStatus.RedisAddr) == "" {
			errs = append(errs, "job_status.redis_addr is required for redis broadcast")
		}
	case BroadcastRelay:
		if strings.TrimSpace(cfg.JobStatus.RelayURL) == "" {
			errs = append(errs, "job_status.relay_url is required for relay broadcast")
		}
	default:
		errs = append(errs, fmt.Sprintf("job_status.broadcast %q is not one of none, postgres, redis, relay", cfg.JobStatus.Broadcast))
	}

	return errs
}

// SessionKey decodes the sealing key. Call only after Validate passed.
func (cfg Config) SessionKey() ([]byte, error) {
	return hex.DecodeString(strings.TrimSpace(cfg.Session.KeyHex))
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return
	}
	*dst = d
}
