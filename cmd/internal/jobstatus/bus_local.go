package jobstatus

import (
	"context"
	"log/slog"
	"sync"
)

const localBusQueueSize = 64

// LocalFabric connects Bus handles within one process. Each execution context
// calls Join for its own handle; a publish on one handle fans out to every
// other handle, never back to the sender.
//
// Delivery is non-blocking: a member whose queue is full misses the message
// and relies on the next storage read to catch up.
type LocalFabric struct {
	log *slog.Logger

	mu      sync.RWMutex
	members map[*localBus]struct{}
}

// NewLocalFabric constructs a fabric with no members.
func NewLocalFabric(log *slog.Logger) *LocalFabric {
	if log == nil {
		log = slog.Default()
	}
	return &LocalFabric{log: log, members: make(map[*localBus]struct{})}
}

// Join creates a Bus handle attached to the fabric. sender names the joining
// context in broadcast payloads and logs.
func (f *LocalFabric) Join(sender string) Bus {
	b := &localBus{
		fabric: f,
		sender: sender,
		queue:  make(chan Message, localBusQueueSize),
		done:   make(chan struct{}),
		subs:   make(map[int]func(Message)),
	}

	f.mu.Lock()
	f.members[b] = struct{}{}
	f.mu.Unlock()

	go b.pump()
	return b
}

func (f *LocalFabric) broadcast(from *localBus, msg Message) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for m := range f.members {
		if m == from {
			continue
		}
		select {
		case <-m.done:
			continue
		default:
		}
		select {
		case m.queue <- msg:
		default:
			// Drop rather than block the fabric on one slow member.
			f.log.Warn("bus.local.drop", "sender", msg.Sender, "key", msg.Record.Key)
		}
	}
}

func (f *LocalFabric) leave(b *localBus) {
	f.mu.Lock()
	delete(f.members, b)
	f.mu.Unlock()
}

type localBus struct {
	fabric *LocalFabric
	sender string
	queue  chan Message
	done   chan struct{}

	mu        sync.Mutex
	subs      map[int]func(Message)
	subID     int
	closeOnce sync.Once
}

func (b *localBus) Publish(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.fabric.broadcast(b, Message{Sender: b.sender, Record: rec})
	return nil
}

func (b *localBus) Subscribe(fn func(Message)) (unsubscribe func()) {
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

func (b *localBus) Close() error {
	b.closeOnce.Do(func() {
		b.fabric.leave(b)
		close(b.done)
	})
	return nil
}

// pump delivers queued messages to subscribers in arrival order.
func (b *localBus) pump() {
	for {
		select {
		case <-b.done:
			return
		case msg := <-b.queue:
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
	}
}
