package jobstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// redisChannel is the well-known Pub/Sub channel shared by all producers and
// consumers of job status.
const redisChannel = "foodscan:job-status"

// RedisBus is a Bus carried over Redis Pub/Sub. Like NOTIFY, Pub/Sub echoes
// publishes back to the publisher's own subscription, so self-delivery is
// dropped via the Sender field.
type RedisBus struct {
	log    *slog.Logger
	rdb    *redis.Client
	sender string
	pubsub *redis.PubSub

	mu    sync.Mutex
	subs  map[int]func(Message)
	subID int

	closeOnce sync.Once
	done      chan struct{}
}

// NewRedisBus constructs a RedisBus and starts its receive goroutine.
func NewRedisBus(log *slog.Logger, rdb *redis.Client, sender string) (*RedisBus, error) {
	if log == nil {
		log = slog.Default()
	}
	if rdb == nil {
		return nil, fmt.Errorf("jobstatus: nil redis client")
	}

	b := &RedisBus{
		log:    log,
		rdb:    rdb,
		sender: sender,
		pubsub: rdb.Subscribe(context.Background(), redisChannel),
		subs:   make(map[int]func(Message)),
		done:   make(chan struct{}),
	}
	go b.receive()
	return b, nil
}

// Publish emits rec to every other subscribed context.
func (b *RedisBus) Publish(ctx context.Context, rec Record) error {
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
	if err := b.rdb.Publish(ctx, redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("jobstatus: publish: %w", err)
	}
	return nil
}

// Subscribe registers fn for incoming messages.
func (b *RedisBus) Subscribe(fn func(Message)) (unsubscribe func()) {
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

// Close tears down the Pub/Sub subscription and stops the receive goroutine.
func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.pubsub.Close()
	})
	return err
}

func (b *RedisBus) receive() {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.done:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			b.deliver(m.Payload)
		}
	}
}

func (b *RedisBus) deliver(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.log.Warn("jobstatus.redisbus.decode.fail", "err", err)
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
