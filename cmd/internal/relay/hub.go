package relay

import (
	"log/slog"
	"sync"
)

// Hub owns in-memory channels and provides stable channel handles. It is
// intentionally minimal: durable job state lives in the clients' stores, the
// hub only moves frames between live connections.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		channels: make(map[string]*Channel),
	}
}

// GetOrCreateChannel returns a stable in-memory channel handle.
func (h *Hub) GetOrCreateChannel(name string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.channels[name]; ok {
		return c
	}

	c := NewChannel(h.log, name)
	h.channels[name] = c
	return c
}
