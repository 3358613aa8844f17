package httpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when the session cannot be recovered:
	// no refresh credential is stored, or the refresh call itself failed.
	// Either way the session has been logged out.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrReplayNotPossible is returned when a request that should be
	// replayed after a refresh has a body that cannot be rebuilt
	// (Body set but GetBody nil).
	ErrReplayNotPossible = errors.New("request body cannot be replayed")
)

// RefreshError carries the cause of a failed refresh call. It unwraps to
// ErrUnauthenticated so callers can branch on the class without inspecting
// the cause.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	if e.Cause == nil {
		return ErrUnauthenticated.Error()
	}
	return fmt.Sprintf("%s: %s", ErrUnauthenticated.Error(), e.Cause)
}

func (e *RefreshError) Unwrap() error { return ErrUnauthenticated }
