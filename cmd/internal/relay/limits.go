package relay

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	defaultSendQueueSize = 64
	minSendQueueSize     = 16
)

const (
	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Per-connection rate limits (frames per window).
	rateLimitFrames = 120
	rateLimitWindow = 10 * time.Second
)
