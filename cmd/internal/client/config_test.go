package client

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
api:
  base_url: https://api.foodscan.app
job_status:
  storage: sqlite
  sqlite_path: /tmp/foodscan/jobs.db
  broadcast: relay
  relay_url: ws://127.0.0.1:8090/relay/job-status
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.API.RefreshPath != "/auth/refresh" {
		t.Fatalf("refresh path default missing: %q", cfg.API.RefreshPath)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Fatalf("timeout default missing: %v", cfg.API.Timeout)
	}
	if cfg.JobStatus.PollInterval != 2*time.Second {
		t.Fatalf("poll interval default missing: %v", cfg.JobStatus.PollInterval)
	}
	if cfg.JobStatus.Storage != StorageSQLite || cfg.JobStatus.Broadcast != BroadcastRelay {
		t.Fatalf("file values lost: %+v", cfg.JobStatus)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`
api:
  base_url: https://api.foodscan.app
  basepath: /v1
`), "test")
	if err == nil || !strings.Contains(err.Error(), "parse YAML") {
		t.Fatalf("expected strict decode failure, got %v", err)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("FOODSCAN_API_BASE_URL", "https://staging.foodscan.app")
	t.Setenv("FOODSCAN_JOBSTATUS_STORAGE", "memory")
	t.Setenv("FOODSCAN_JOBSTATUS_BROADCAST", "none")

	cfg, err := Parse([]byte(validYAML), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.API.BaseURL != "https://staging.foodscan.app" {
		t.Fatalf("env override lost: %q", cfg.API.BaseURL)
	}
	if cfg.JobStatus.Storage != StorageMemory || cfg.JobStatus.Broadcast != BroadcastNone {
		t.Fatalf("env override lost: %+v", cfg.JobStatus)
	}
}

func TestValidateRequirementPairs(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{
			name: "missing base url",
			mut:  func(c *Config) { c.API.BaseURL = "" },
			want: "api.base_url",
		},
		{
			name: "sqlite without path",
			mut:  func(c *Config) { c.JobStatus.Storage = StorageSQLite; c.JobStatus.SQLitePath = "" },
			want: "sqlite_path",
		},
		{
			name: "postgres without url",
			mut:  func(c *Config) { c.JobStatus.Broadcast = BroadcastPostgres },
			want: "database_url",
		},
		{
			name: "relay without url",
			mut:  func(c *Config) { c.JobStatus.Broadcast = BroadcastRelay },
			want: "relay_url",
		},
		{
			name: "unknown storage",
			mut:  func(c *Config) { c.JobStatus.Storage = "flatfile" },
			want: "job_status.storage",
		},
		{
			name: "short session key",
			mut: func(c *Config) {
				c.Session.SnapshotPath = "/tmp/session.bin"
				c.Session.KeyHex = "abcd"
			},
			want: "32 bytes",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.API.BaseURL = "https://api.foodscan.app"
			tc.mut(&cfg)

			errs := cfg.Validate()
			found := false
			for _, e := range errs {
				if strings.Contains(e, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, errs)
			}
		})
	}
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("FOODSCAN_API_BASE_URL", "https://api.foodscan.app")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.foodscan.app" {
		t.Fatalf("env fallback lost: %q", cfg.API.BaseURL)
	}
	if cfg.JobStatus.Storage != StorageMemory {
		t.Fatalf("defaults lost: %+v", cfg.JobStatus)
	}
}
