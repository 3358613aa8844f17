// Package main provides a CI-friendly smoke test for the foodscan relay.
//
// It validates:
//   - handshake on /relay/{channel}
//   - frame fanout from one member to another
//   - sender exclusion (no echo back to the writer)
//   - channel isolation (no cross-channel leakage)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

func main() {
	var (
		relayURL = flag.String("url", "ws://127.0.0.1:8090/relay", "Relay base URL (channel appended)")
		channel  = flag.String("channel", "job-status", "Channel to exercise")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*relayURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	endpoint := strings.TrimRight(*relayURL, "/") + "/" + *channel

	a := mustDial(root, endpoint, *timeout)
	defer closeWS(a)
	b := mustDial(root, endpoint, *timeout)
	defer closeWS(b)

	// Channel isolation witness.
	other := mustDial(root, strings.TrimRight(*relayURL, "/")+"/"+*channel+"-other", *timeout)
	defer closeWS(other)

	if *verbose {
		fmt.Printf("connected: 2 members on %q, 1 on isolation channel\n", *channel)
	}

	// The relay registers members during the handshake, but give the slower
	// side a moment before the first frame.
	time.Sleep(200 * time.Millisecond)

	frame := fmt.Sprintf(`{"sender":"smoke-a","record":{"key":"smoke-%d","state":"completed","message":"smoke"}}`, time.Now().UnixNano())

	writeCtx, cancel := context.WithTimeout(root, *timeout)
	if err := a.Write(writeCtx, websocket.MessageText, []byte(frame)); err != nil {
		cancel()
		fatalf("write: %v", err)
	}
	cancel()

	got := mustRead(root, b, *timeout)
	if got != frame {
		fatalf("fanout altered the frame:\n  sent: %s\n  got:  %s", frame, got)
	}

	if echoed, ok := tryRead(root, a, 500*time.Millisecond); ok {
		fatalf("sender received its own frame back: %s", echoed)
	}
	if leaked, ok := tryRead(root, other, 500*time.Millisecond); ok {
		fatalf("frame leaked across channels: %s", leaked)
	}

	fmt.Println("relay smoke: OK")
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("scheme must be ws or wss")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustDial(parent context.Context, endpoint string, timeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		fatalf("dial %s: %v", endpoint, err)
	}
	return conn
}

func mustRead(parent context.Context, conn *websocket.Conn, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	_, payload, err := conn.Read(ctx)
	if err != nil {
		fatalf("read: %v", err)
	}
	return string(payload)
}

func tryRead(parent context.Context, conn *websocket.Conn, timeout time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	_, payload, err := conn.Read(ctx)
	if err != nil {
		return "", false
	}
	return string(payload), true
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "relay smoke: FAIL: "+format+"\n", args...)
	os.Exit(1)
}
