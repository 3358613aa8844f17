package jobstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	relayWriteTimeout   = 5 * time.Second
	relayRedialInterval = 2 * time.Second
)

// RelayBus is a Bus carried over a websocket connection to the foodscan
// relay. It is the transport for contexts that share neither a process nor a
// database: each context dials the relay, and the relay fans every frame out
// to the other members of the channel (never back to the sender).
type RelayBus struct {
	log    *slog.Logger
	url    string
	sender string

	mu    sync.Mutex
	conn  *websocket.Conn
	subs  map[int]func(Message)
	subID int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelayBus constructs a RelayBus and starts its dial/receive goroutine.
// url is the full relay channel endpoint, e.g.
// "ws://127.0.0.1:8090/relay/job-status".
func NewRelayBus(log *slog.Logger, url, sender string) *RelayBus {
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RelayBus{
		log:    log,
		url:    url,
		sender: sender,
		subs:   make(map[int]func(Message)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.run(ctx)
	return b
}

// Publish sends rec to the relay. Without a live connection the message is
// dropped: the bus is a latency optimization and the store catches up.
func (b *RelayBus) Publish(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		b.log.Warn("jobstatus.relaybus.drop.disconnected", "key", rec.Key)
		return nil
	}

	payload, err := json.Marshal(Message{Sender: b.sender, Record: rec})
	if err != nil {
		return fmt.Errorf("jobstatus: encode message: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, relayWriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("jobstatus: relay write: %w", err)
	}
	return nil
}

// Subscribe registers fn for incoming messages.
func (b *RelayBus) Subscribe(fn func(Message)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.subID
	b.subID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close tears down the connection and stops the receive goroutine.
func (b *RelayBus) Close() error {
	b.cancel()
	<-b.done
	return nil
}

// run maintains the relay connection, redialing with a fixed backoff.
func (b *RelayBus) run(ctx context.Context) {
	defer close(b.done)
	defer func() {
		b.mu.Lock()
		if b.conn != nil {
			_ = b.conn.Close(websocket.StatusNormalClosure, "bye")
			b.conn = nil
		}
		b.mu.Unlock()
	}()

	for ctx.Err() == nil {
		if err := b.connectAndReceive(ctx); err != nil && ctx.Err() == nil {
			b.log.Warn("jobstatus.relaybus.conn.fail", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(relayRedialInterval):
		}
	}
}

func (b *RelayBus) connectAndReceive(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	b.log.Debug("jobstatus.relaybus.connected", "url", b.url)

	for {
		mt, payload, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}
		b.deliver(payload)
	}
}

func (b *RelayBus) deliver(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.log.Warn("jobstatus.relaybus.decode.fail", "err", err)
		return
	}
	// The relay never echoes to the sender, but keep the guard for uniformity
	// with the other transports.
	if msg.Sender == b.sender {
		return
	}

	b.mu.Lock()
	fns := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}
