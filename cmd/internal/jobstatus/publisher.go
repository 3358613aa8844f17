package jobstatus

import (
	"context"
	"log/slog"
	"time"
)

// Publisher is the producer-side API: durable write first, broadcast second.
//
// Both halves are best-effort, but the store is the source of truth: a failed
// broadcast only costs latency (other contexts catch up from storage), while
// a failed store write is reported because a restart would lose the record.
type Publisher struct {
	log   *slog.Logger
	store StateStore
	bus   Bus
}

// NewPublisher constructs a Publisher. bus may be nil when the deployment has
// no broadcast transport; propagation then relies on storage watching alone.
func NewPublisher(log *slog.Logger, store StateStore, bus Bus) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{log: log, store: store, bus: bus}
}

// Publish writes rec durably and then emits it on the broadcast channel.
// A zero CreatedAt is stamped with the current time.
func (p *Publisher) Publish(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	if err := p.store.Put(ctx, rec); err != nil {
		return err
	}

	if p.bus != nil {
		if err := p.bus.Publish(ctx, rec); err != nil {
			// Latency optimization only; storage remains authoritative.
			p.log.Warn("jobstatus.broadcast.fail", "key", rec.Key, "err", err)
			metricPublishTotal.WithLabelValues("broadcast_fail").Inc()
			return nil
		}
	}
	metricPublishTotal.WithLabelValues("ok").Inc()
	return nil
}

// Clear removes the durable record once a consumer has rendered the terminal
// outcome, so the same notification cannot reappear on a later visit.
func (p *Publisher) Clear(ctx context.Context, key string) error {
	return p.store.Delete(ctx, key)
}
