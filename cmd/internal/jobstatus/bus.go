package jobstatus

import "context"

// Message is the fire-and-forget broadcast payload. It carries the full
// record so recipients can apply exactly the same reconciliation as for a
// storage read; Sender identifies the publishing context so transports that
// echo publishes back (Redis Pub/Sub, Postgres NOTIFY) can drop the echo.
type Message struct {
	Sender string `json:"sender"`
	Record Record `json:"record"`
}

// Bus is one execution context's handle on the broadcast channel.
//
// Publish never waits for recipients; delivery is at-most-once per recipient
// and the publishing context never receives its own messages. Subscribers
// must not block: slow subscribers are dropped-on-overflow rather than
// backpressuring the channel.
type Bus interface {
	Publish(ctx context.Context, rec Record) error
	Subscribe(fn func(Message)) (unsubscribe func())
	Close() error
}
