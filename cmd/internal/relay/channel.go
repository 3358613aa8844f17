package relay

import (
	"log/slog"
	"sync"
)

// Channel is an in-memory membership + broadcast fanout primitive. The relay
// never inspects frames beyond the size limit: the payload contract belongs
// to the clients.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast never reaches the sending member.
type Channel struct {
	log  *slog.Logger
	Name string

	mu      sync.RWMutex
	members map[string]*Member
}

// NewChannel constructs a channel.
func NewChannel(log *slog.Logger, name string) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		log:     log,
		Name:    name,
		members: make(map[string]*Member),
	}
}

// Join adds a member.
func (c *Channel) Join(m *Member) {
	if c == nil || m == nil || m.ID == "" {
		return
	}

	c.mu.Lock()
	c.members[m.ID] = m
	c.mu.Unlock()

	c.log.Info("relay.member.join", "channel", c.Name, "member_id", m.ID)
}

// Leave removes a member and signals shutdown for it.
func (c *Channel) Leave(memberID string) {
	if c == nil || memberID == "" {
		return
	}

	var m *Member

	c.mu.Lock()
	m = c.members[memberID]
	delete(c.members, memberID)
	c.mu.Unlock()

	// Signal shutdown after removing from membership, so no broadcaster
	// holds a pointer while the member goroutines are being torn down.
	if m != nil {
		m.Close()
	}

	c.log.Info("relay.member.leave", "channel", c.Name, "member_id", memberID)
}

// Broadcast fans a frame out to every member except the sender.
// Non-blocking: if a member queue is full or the member is shutting down,
// the frame is dropped for that member.
func (c *Channel) Broadcast(fromID string, frame []byte) {
	if c == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, m := range c.members {
		if id == fromID || m == nil {
			continue
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- frame:
			metricFramesRelayed.Inc()
		default:
			// Drop rather than block the whole channel.
			metricFramesDropped.Inc()
		}
	}
}

// Size returns the current member count.
func (c *Channel) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}
