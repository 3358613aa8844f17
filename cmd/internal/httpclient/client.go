package httpclient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"foodscan/cmd/internal/session"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRefreshPath = "/auth/refresh"

	// maxSniffBytes bounds how much of a 401 body is read while looking for
	// the refresh marker.
	maxSniffBytes = 64 << 10
)

// Config configures the Client.
type Config struct {
	// BaseURL is the API origin, e.g. "https://api.foodscan.app".
	BaseURL string

	// RefreshPath is the refresh endpoint path (default /auth/refresh).
	RefreshPath string

	// Timeout applies to each HTTP call, the refresh call included. It is
	// what guarantees a hung refresh eventually settles and drains the
	// waiter queue.
	Timeout time.Duration
}

// Client is the authenticated HTTP client. Construct exactly one per process
// and share it; the single-flight refresh guarantee is per Client instance.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	session *session.Store

	baseURL     string
	refreshPath string

	coord *refreshCoordinator
}

// New constructs a Client over the given session store. transport may be nil,
// in which case http.DefaultTransport is used.
func New(log *slog.Logger, cfg Config, sess *session.Store, transport http.RoundTripper) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	refreshPath := cfg.RefreshPath
	if refreshPath == "" {
		refreshPath = defaultRefreshPath
	}

	c := &Client{
		log:     log,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		session: sess,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),

		refreshPath: refreshPath,
	}
	c.coord = newRefreshCoordinator(log, sess, c.refreshOnce)
	return c
}

// NewRequest builds a request against the configured base URL. Requests built
// here are always replayable after a refresh: the body is buffered so GetBody
// is available.
func (c *Client) NewRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	return req, nil
}

// Do executes req with the current access credential attached. On a 401
// carrying the refresh marker it refreshes the session once and replays the
// request with the new credential. Transport errors and all other response
// statuses pass through unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, 0)
}

// do is the response-side middleware. attempt counts refresh-and-replay
// rounds for this request: at most one, to guarantee termination even when
// the replay fails with the marker again.
func (c *Client) do(req *http.Request, attempt int) (*http.Response, error) {
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		// Transient transport error: propagated untouched.
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxSniffBytes))
	if readErr != nil || !hasRefreshMarker(body) {
		// Terminal auth failure (bad credentials, no marker): pass through,
		// with the sniffed prefix stitched back in front of the remainder.
		resp.Body = stitchBody(body, resp.Body)
		return resp, nil
	}

	if attempt >= 1 {
		// Already replayed once; never attempt a second refresh.
		c.log.Warn("httpclient.refresh.exhausted", "path", req.URL.Path)
		resp.Body = stitchBody(body, resp.Body)
		return resp, nil
	}
	_ = resp.Body.Close()

	if _, err := c.coord.credential(req.Context()); err != nil {
		return nil, err
	}

	replay, err := rebuildRequest(req)
	if err != nil {
		return nil, err
	}
	return c.do(replay, attempt+1)
}

// authenticate is the request-side middleware: it attaches the current access
// credential when one is present and otherwise lets the request proceed
// unauthenticated. It never blocks and never inspects responses.
func (c *Client) authenticate(req *http.Request) {
	if cred, ok := c.session.AccessCredential(); ok {
		req.Header.Set("Authorization", "Bearer "+cred)
	} else {
		req.Header.Del("Authorization")
	}
}

// stitchBody re-attaches the sniffed prefix in front of the unread remainder
// so the caller sees the full response body, not just the sniffed window.
func stitchBody(prefix []byte, rest io.ReadCloser) io.ReadCloser {
	return &stitchedBody{Reader: io.MultiReader(bytes.NewReader(prefix), rest), rest: rest}
}

type stitchedBody struct {
	io.Reader
	rest io.ReadCloser
}

func (b *stitchedBody) Close() error { return b.rest.Close() }

// rebuildRequest clones req for replay, rebuilding the body via GetBody.
func rebuildRequest(req *http.Request) (*http.Request, error) {
	replay := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		replay.Body = nil
		return replay, nil
	}
	if req.GetBody == nil {
		return nil, ErrReplayNotPossible
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	replay.Body = body
	return replay, nil
}
