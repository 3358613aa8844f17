package jobstatus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultPollInterval = 2 * time.Second

// PollWatcher adapts any StateStore into a Watcher by periodic snapshot
// diffing. It covers stores whose backend has no change notification (the
// SQLite file shared between processes, notably).
//
// The poll interval bounds propagation latency on this path; the Bus covers
// the low-latency case, so a coarse interval is fine.
type PollWatcher struct {
	log      *slog.Logger
	store    StateStore
	interval time.Duration

	mu     sync.Mutex
	subs   map[int]func(Event)
	subID  int
	last   map[string]Record
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollWatcher constructs and starts a PollWatcher over store.
func NewPollWatcher(log *slog.Logger, store StateStore, interval time.Duration) *PollWatcher {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &PollWatcher{
		log:      log,
		store:    store,
		interval: interval,
		subs:     make(map[int]func(Event)),
		last:     make(map[string]Record),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// Watch registers fn for change events.
func (w *PollWatcher) Watch(fn func(Event)) (unsubscribe func()) {
	w.mu.Lock()
	id := w.subID
	w.subID++
	w.subs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Close stops the polling goroutine and waits for it to exit.
func (w *PollWatcher) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func (w *PollWatcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Seed the baseline so mount-time records do not double-fire: the
	// observer reads them directly on mount.
	if recs, err := w.store.List(ctx); err == nil {
		w.mu.Lock()
		for _, rec := range recs {
			w.last[rec.Key] = rec
		}
		w.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *PollWatcher) poll(ctx context.Context) {
	recs, err := w.store.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("jobstatus.poll.fail", "err", err)
		}
		return
	}

	cur := make(map[string]Record, len(recs))
	for _, rec := range recs {
		cur[rec.Key] = rec
	}

	var events []Event
	w.mu.Lock()
	for key, rec := range cur {
		prev, ok := w.last[key]
		if !ok || !recordEqual(prev, rec) {
			r := rec
			events = append(events, Event{Key: key, Record: &r})
		}
	}
	for key := range w.last {
		if _, ok := cur[key]; !ok {
			events = append(events, Event{Key: key})
		}
	}
	w.last = cur
	fns := make([]func(Event), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
