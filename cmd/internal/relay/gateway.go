// Package relay is the fanout server that bridges app instances which do not
// share a process. Clients connect one websocket per channel and every frame a
// client sends is forwarded verbatim to every other member of that channel.
// The relay never parses payloads: durable state and reconciliation live in
// the clients, the relay is only the live delivery path.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"foodscan/cmd/internal/ids"

	"github.com/coder/websocket"
)

const (
	// Origin defaults: the relay serves native app clients that send no
	// Origin header, so unlike a browser-facing gateway it does not require
	// one. When an Origin IS present it must match the allowlist.
	defaultOriginRequired = false
	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Gateway is the WebSocket entrypoint for the relay.
//
// It enforces origin policy, rate limits and heartbeats, and forwards frames
// through the Hub.
type Gateway struct {
	log *slog.Logger
	hub *Hub

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateFrames int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
// When hub is nil a fresh in-memory hub is used.
func NewGateway(log *slog.Logger, hub *Hub) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &Gateway{log: log, hub: hub}

	// NOTE: InsecureSkipVerify is a dev-only knob. It is not an origin policy.
	g.devInsecure = envBool("FOODSCAN_RELAY_DEV_INSECURE", false)

	g.originRequired = envBool("FOODSCAN_RELAY_ORIGIN_REQUIRED", defaultOriginRequired)
	g.allowedOrigins = envCSV("FOODSCAN_RELAY_ALLOWED_ORIGINS", defaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy: same-host is ok,
	// cross-origin requires OriginPatterns (host patterns). Derive the
	// patterns from the allowlist so the two layers agree.
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)

	g.writeTimeout = envDuration("FOODSCAN_RELAY_WRITE_TIMEOUT", 5*time.Second)
	g.readIdleTimeout = envDuration("FOODSCAN_RELAY_READ_IDLE_TIMEOUT", 2*time.Minute)

	g.sendQueueSize = envInt("FOODSCAN_RELAY_SEND_QUEUE", defaultSendQueueSize)
	if g.sendQueueSize < minSendQueueSize {
		g.sendQueueSize = minSendQueueSize
	}

	g.heartbeatEvery = envDuration("FOODSCAN_RELAY_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDuration("FOODSCAN_RELAY_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateFrames = envInt("FOODSCAN_RELAY_RATE_FRAMES", rateLimitFrames)
	g.rateWindow = envDuration("FOODSCAN_RELAY_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP mounts the gateway as an http.Handler; the channel name is the
// last path segment (e.g. /relay/job-status -> "job-status").
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	g.ServeChannel(w, r, name)
}

// ServeChannel upgrades an HTTP request to a WebSocket session on the named
// channel and runs the relay loop until the peer disconnects.
func (g *Gateway) ServeChannel(w http.ResponseWriter, r *http.Request, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("relay.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("relay.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	memberID := ids.MustULID(time.Now().UTC())
	member := newMember(memberID, g.sendQueueSize)

	ch := g.hub.GetOrCreateChannel(channel)
	ch.Join(member)
	metricConnections.Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close member.Send.
	// Membership removal happens before member.Close so no broadcaster holds
	// a pointer to a member being torn down.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			ch.Leave(memberID)
			metricConnections.Dec()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateFrames, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-member.Done():
				return
			case frame := <-member.Send:
				if err := g.writeFrame(ctx, conn, frame); err != nil {
					g.log.Info("relay.write.fail", "member_id", memberID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-member.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("relay.ping.fail", "member_id", memberID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		frame, err := g.readFrame(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("relay.read.fail", "member_id", memberID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(time.Now().UTC()) {
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		// Fan out to everyone else on the channel; the sender never receives
		// its own frame back.
		ch.Broadcast(memberID, frame)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(time.Second):
	}
}

// ---- frame IO ----

func (g *Gateway) readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return nil, errors.New("unsupported message type")
	}
	return data, nil
}

func (g *Gateway) writeFrame(parent context.Context, conn *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(parent, g.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return errors.New("origin not allowed: " + origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns. Keep this strict: only hosts extracted from
	// the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSV(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
