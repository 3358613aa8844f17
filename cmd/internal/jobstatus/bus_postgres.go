package jobstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgChannel is the well-known NOTIFY channel shared by all producers and
// consumers of job status.
const pgChannel = "foodscan_job_status"

// PGBus is a Bus carried over Postgres LISTEN/NOTIFY, pairing naturally with
// PostgresStore: one backend provides both the durable record and the
// broadcast.
//
// NOTIFY echoes to every listener including the publisher's own context, so
// the Sender field is used to drop self-delivery.
type PGBus struct {
	log    *slog.Logger
	pool   *pgxpool.Pool
	sender string

	mu    sync.Mutex
	subs  map[int]func(Message)
	subID int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPGBus constructs a PGBus and starts its listener goroutine. sender must
// be unique per execution context (a ULID works well).
func NewPGBus(log *slog.Logger, pool *pgxpool.Pool, sender string) (*PGBus, error) {
	if log == nil {
		log = slog.Default()
	}
	if pool == nil {
		return nil, fmt.Errorf("jobstatus: nil pool")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &PGBus{
		log:    log,
		pool:   pool,
		sender: sender,
		subs:   make(map[int]func(Message)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.listen(ctx)
	return b, nil
}

// Publish emits rec to every other listening context.
func (b *PGBus) Publish(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	payload, err := json.Marshal(Message{Sender: b.sender, Record: rec})
	if err != nil {
		return fmt.Errorf("jobstatus: encode message: %w", err)
	}
	if _, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, string(payload)); err != nil {
		return fmt.Errorf("jobstatus: notify: %w", err)
	}
	return nil
}

// Subscribe registers fn for incoming messages.
func (b *PGBus) Subscribe(fn func(Message)) (unsubscribe func()) {
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

// Close stops the listener goroutine.
func (b *PGBus) Close() error {
	b.cancel()
	<-b.done
	return nil
}

// listen holds a dedicated connection on LISTEN and fans notifications out to
// subscribers. A broken connection is re-acquired with a small backoff; the
// store remains authoritative for anything missed in between.
func (b *PGBus) listen(ctx context.Context) {
	defer close(b.done)

	for ctx.Err() == nil {
		if err := b.listenOnce(ctx); err != nil && ctx.Err() == nil {
			b.log.Warn("jobstatus.pgbus.listen.fail", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (b *PGBus) listenOnce(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+pgChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		b.deliver(n.Payload)
	}
}

func (b *PGBus) deliver(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.log.Warn("jobstatus.pgbus.decode.fail", "err", err)
		return
	}
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
