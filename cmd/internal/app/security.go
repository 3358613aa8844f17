package app

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateSecurityConfig enforces the relay's startup security policy.
//
// Fail-fast is intentional: a relay that silently accepts any Origin in a
// deployment that asked for an allowlist is worse than one that refuses to
// start.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireOriginAllowlist {
		return nil
	}

	allowed := EnvCSV("FOODSCAN_RELAY_ALLOWED_ORIGINS", "")
	if len(allowed) == 0 {
		return errors.New("security policy: FOODSCAN_RELAY_REQUIRE_ORIGIN_ALLOWLIST=true but FOODSCAN_RELAY_ALLOWED_ORIGINS is empty")
	}
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return errors.New("security policy: FOODSCAN_RELAY_ALLOWED_ORIGINS must not contain \"*\" under the allowlist policy")
		}
	}

	if !EnvBool("FOODSCAN_RELAY_ORIGIN_REQUIRED", false) {
		return fmt.Errorf("security policy: FOODSCAN_RELAY_REQUIRE_ORIGIN_ALLOWLIST=true requires FOODSCAN_RELAY_ORIGIN_REQUIRED=true")
	}

	return nil
}
