package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testRouter(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRouter(log, cfg, nil, false, nil)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	testRouter(t, Config{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	if rr.Body.String() != "ok\n" {
		t.Fatalf("healthz body=%q", rr.Body.String())
	}
}

func TestReadyzWithoutDB(t *testing.T) {
	t.Parallel()

	// No DB configured and none required: ready.
	rr := httptest.NewRecorder()
	testRouter(t, Config{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rr.Code)
	}

	// DB required but not configured: not ready.
	rr = httptest.NewRecorder()
	testRouter(t, Config{ReadinessRequireDB: true}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with required db status=%d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	testRouter(t, Config{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("metrics output missing runtime collectors")
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	if err := ValidateSecurityConfig(Config{}); err != nil {
		t.Fatalf("policy disabled must pass: %v", err)
	}

	t.Setenv("FOODSCAN_RELAY_ALLOWED_ORIGINS", "")
	if err := ValidateSecurityConfig(Config{RequireOriginAllowlist: true}); err == nil {
		t.Fatalf("empty allowlist must fail under policy")
	}

	t.Setenv("FOODSCAN_RELAY_ALLOWED_ORIGINS", "https://app.example.com, *")
	if err := ValidateSecurityConfig(Config{RequireOriginAllowlist: true}); err == nil {
		t.Fatalf("wildcard allowlist must fail under policy")
	}

	t.Setenv("FOODSCAN_RELAY_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("FOODSCAN_RELAY_ORIGIN_REQUIRED", "false")
	if err := ValidateSecurityConfig(Config{RequireOriginAllowlist: true}); err == nil {
		t.Fatalf("allowlist policy without mandatory origin must fail")
	}

	t.Setenv("FOODSCAN_RELAY_ORIGIN_REQUIRED", "true")
	if err := ValidateSecurityConfig(Config{RequireOriginAllowlist: true}); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}
}
