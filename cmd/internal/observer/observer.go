// Package observer reconciles job-status deliveries into notifications.
//
// One Observer is mounted per execution context. On mount it reads every
// record directly from durable storage (covering contexts opened after a
// broadcast was sent), then subscribes to storage-change events and broadcast
// messages for the lifetime of the context. All three paths funnel into the
// same reconciliation function, so behavior is identical regardless of
// delivery path and duplicate deliveries are harmless.
package observer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"foodscan/cmd/internal/ids"
	"foodscan/cmd/internal/jobstatus"
	"foodscan/cmd/internal/notify"
)

// Config carries the view callbacks and the suppression rule.
type Config struct {
	// Navigate is invoked when the user follows a completed entry's action.
	Navigate func(resultID string)

	// Retry is invoked when the user follows an error entry's action.
	Retry func(key string)

	// Suppress decides whether a completed record should not be notified,
	// e.g. because the current view already displays that result. nil means
	// never suppress.
	Suppress func(rec jobstatus.Record) bool
}

// Observer is the per-context subscriber.
type Observer struct {
	log     *slog.Logger
	store   jobstatus.StateStore
	watcher jobstatus.Watcher
	bus     jobstatus.Bus
	mgr     *notify.Manager
	cfg     Config

	mu     sync.Mutex
	curKey string // job key of the displayed entry
	curID  string // fencing id of the displayed entry
	unsubs []func()
}

// New constructs an Observer. watcher and bus may each be nil; whatever
// sources are present feed the same reconciliation.
func New(log *slog.Logger, store jobstatus.StateStore, watcher jobstatus.Watcher, bus jobstatus.Bus, mgr *notify.Manager, cfg Config) *Observer {
	if log == nil {
		log = slog.Default()
	}
	return &Observer{
		log:     log,
		store:   store,
		watcher: watcher,
		bus:     bus,
		mgr:     mgr,
		cfg:     cfg,
	}
}

// Mount performs the initial storage read and attaches the event sources.
func (o *Observer) Mount(ctx context.Context) error {
	recs, err := o.store.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		o.Reconcile(rec)
	}

	if o.watcher != nil {
		unsub := o.watcher.Watch(func(ev jobstatus.Event) {
			if ev.Record != nil {
				o.Reconcile(*ev.Record)
			} else {
				o.recordCleared(ev.Key)
			}
		})
		o.addUnsub(unsub)
	}
	if o.bus != nil {
		unsub := o.bus.Subscribe(func(m jobstatus.Message) {
			o.Reconcile(m.Record)
		})
		o.addUnsub(unsub)
	}
	return nil
}

// Unmount detaches the event sources. The notification manager keeps
// whatever is currently displayed; tearing down the view clears it.
func (o *Observer) Unmount() {
	o.mu.Lock()
	unsubs := o.unsubs
	o.unsubs = nil
	o.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

func (o *Observer) addUnsub(fn func()) {
	o.mu.Lock()
	o.unsubs = append(o.unsubs, fn)
	o.mu.Unlock()
}

// Reconcile maps one record to a notification request. It is idempotent:
// replaying the same record produces the same final notification state.
func (o *Observer) Reconcile(rec jobstatus.Record) {
	if err := rec.Validate(); err != nil {
		o.log.Warn("observer.reconcile.invalid", "err", err)
		return
	}

	id := ids.MustULID(time.Now().UTC())

	switch rec.State {
	case jobstatus.StateProcessing:
		o.show(rec.Key, notify.Entry{
			ID:       id,
			Message:  rec.Message,
			Kind:     notify.KindInfo,
			Closable: false,
		})

	case jobstatus.StateCompleted:
		if o.cfg.Suppress != nil && o.cfg.Suppress(rec) {
			// The current view already displays this result; showing a
			// notification for it would be noise. The view clears the
			// record itself.
			o.log.Debug("observer.reconcile.suppressed", "key", rec.Key)
			return
		}
		key := rec.Key
		var resultID string
		if rec.ResultID != nil {
			resultID = *rec.ResultID
		}
		o.show(key, notify.Entry{
			ID:       id,
			Message:  rec.Message,
			Kind:     notify.KindSuccess,
			Closable: true,
			Action: &notify.Action{
				Label: "View result",
				Run:   func() { o.consume(key, id, resultID) },
			},
		})

	case jobstatus.StateError:
		key := rec.Key
		o.show(key, notify.Entry{
			ID:       id,
			Message:  rec.Message,
			Kind:     notify.KindError,
			Closable: true,
			Action: &notify.Action{
				Label: "Retry",
				Run: func() {
					o.mgr.Hide(id)
					if o.cfg.Retry != nil {
						o.cfg.Retry(key)
					}
				},
			},
		})
	}
}

func (o *Observer) show(key string, e notify.Entry) {
	o.mu.Lock()
	o.curKey = key
	o.curID = e.ID
	o.mu.Unlock()
	o.mgr.Show(e)
}

// consume navigates to the result and clears the durable record so the
// notification cannot reappear on a later visit.
func (o *Observer) consume(key, id, resultID string) {
	o.mgr.Hide(id)
	if err := o.store.Delete(context.Background(), key); err != nil {
		o.log.Warn("observer.clear.fail", "key", key, "err", err)
	}
	if o.cfg.Navigate != nil {
		o.cfg.Navigate(resultID)
	}
}

// recordCleared hides the displayed entry when its backing record was
// deleted by another context (e.g. the result view rendered it there).
func (o *Observer) recordCleared(key string) {
	o.mu.Lock()
	match := o.curKey == key
	id := o.curID
	o.mu.Unlock()
	if match {
		o.mgr.Hide(id)
	}
}
