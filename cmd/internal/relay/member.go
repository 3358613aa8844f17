package relay

import "sync"

// Member represents one connected context on a relay channel.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent broadcasters.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Member struct {
	ID   string
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// newMember constructs a Member with a bounded send queue.
func newMember(id string, sendQueueSize int) *Member {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	return &Member{
		ID:   id,
		Send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Done returns a channel that is closed when the member is shutting down.
func (m *Member) Done() <-chan struct{} {
	if m == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.done
}

// Close signals the member goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (m *Member) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		close(m.done)
	})
}
