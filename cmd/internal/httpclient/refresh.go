package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"foodscan/cmd/internal/session"
)

// refreshCoordinator serializes credential refresh: concurrently failing
// requests coalesce into one waiter queue served by a single refresh call.
//
// States are IDLE (refreshing=false, empty queue) and REFRESHING
// (refreshing=true). The queue is non-empty only while REFRESHING. The state
// flag lives for the coordinator's lifetime and guards the session store's
// credential pair: it is the only place that rotates or clears it during
// normal operation.
type refreshCoordinator struct {
	log  *slog.Logger
	sess *session.Store

	// refresh performs the actual network call and credential rotation.
	// Split out so tests can count invocations.
	refresh func(ctx context.Context) (string, error)

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	credential string
	err        error
}

func newRefreshCoordinator(log *slog.Logger, sess *session.Store, refresh func(ctx context.Context) (string, error)) *refreshCoordinator {
	return &refreshCoordinator{log: log, sess: sess, refresh: refresh}
}

// credential returns a fresh access credential, performing at most one
// refresh call regardless of how many callers arrive concurrently. Waiters
// are resolved in arrival order, strictly after the refresh settles.
func (rc *refreshCoordinator) credential(ctx context.Context) (string, error) {
	rc.mu.Lock()
	if rc.refreshing {
		ch := make(chan refreshResult, 1)
		rc.waiters = append(rc.waiters, ch)
		rc.mu.Unlock()

		metricRefreshCoalesced.Inc()
		select {
		case res := <-ch:
			return res.credential, res.err
		case <-ctx.Done():
			// The waiter's own request was cancelled; the refresh itself
			// carries on for the remaining waiters.
			return "", ctx.Err()
		}
	}
	rc.refreshing = true
	rc.mu.Unlock()

	// The outcome is shared by every queued waiter, so the network call must
	// not die with whichever request happened to lead. The HTTP client's own
	// Timeout still bounds the call, which keeps the queue draining.
	cred, err := rc.refresh(context.WithoutCancel(ctx))
	if err != nil {
		metricRefreshTotal.WithLabelValues("fail").Inc()
	} else {
		metricRefreshTotal.WithLabelValues("ok").Inc()
	}

	rc.mu.Lock()
	waiters := rc.waiters
	rc.waiters = nil
	rc.refreshing = false
	rc.mu.Unlock()

	// FIFO: channels were appended in arrival order.
	for _, ch := range waiters {
		ch <- refreshResult{credential: cred, err: err}
	}
	return cred, err
}

// refreshRequest and refreshResponse are the refresh endpoint contract.
type refreshRequest struct {
	RefreshCredential string `json:"refresh_credential"`
}

type refreshResponse struct {
	AccessCredential string `json:"access_credential"`
}

// refreshOnce performs one refresh call against the API.
//
// Failure semantics are fatal for the session: any outcome other than a
// well-formed success logs the user out before the error is surfaced. A
// missing refresh credential short-circuits with zero network calls.
func (c *Client) refreshOnce(ctx context.Context) (string, error) {
	refresh, ok := c.session.RefreshCredential()
	if !ok {
		c.log.Info("httpclient.refresh.no_credential")
		if err := c.session.Logout(); err != nil {
			c.log.Warn("httpclient.logout.fail", "err", err)
		}
		return "", &RefreshError{}
	}

	payload, err := json.Marshal(refreshRequest{RefreshCredential: refresh})
	if err != nil {
		return "", fmt.Errorf("httpclient: encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.refreshPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("httpclient: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.failRefresh(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", c.failRefresh(fmt.Errorf("refresh endpoint returned %d", resp.StatusCode))
	}

	var out refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSniffBytes)).Decode(&out); err != nil {
		return "", c.failRefresh(fmt.Errorf("decode refresh response: %w", err))
	}
	if out.AccessCredential == "" {
		return "", c.failRefresh(fmt.Errorf("refresh response missing access credential"))
	}

	if err := c.session.SetAccessCredential(&out.AccessCredential); err != nil {
		c.log.Warn("httpclient.session.persist.fail", "err", err)
	}
	c.log.Info("httpclient.refresh.ok")
	return out.AccessCredential, nil
}

// failRefresh logs out and wraps the cause. Refresh failure is never silently
// retried.
func (c *Client) failRefresh(cause error) error {
	c.log.Warn("httpclient.refresh.fail", "err", cause)
	if err := c.session.Logout(); err != nil {
		c.log.Warn("httpclient.logout.fail", "err", err)
	}
	return &RefreshError{Cause: cause}
}
