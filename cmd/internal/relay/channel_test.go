package relay

import (
	"testing"
	"time"
)

func drain(m *Member) [][]byte {
	var out [][]byte
	for {
		select {
		case f := <-m.Send:
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	ch := NewChannel(nil, "job-status")

	a := newMember("a", 8)
	b := newMember("b", 8)
	c := newMember("c", 8)
	ch.Join(a)
	ch.Join(b)
	ch.Join(c)

	ch.Broadcast("a", []byte("frame-1"))

	if got := drain(a); len(got) != 0 {
		t.Fatalf("sender received its own frame: %q", got)
	}
	for _, m := range []*Member{b, c} {
		got := drain(m)
		if len(got) != 1 || string(got[0]) != "frame-1" {
			t.Fatalf("member %s got %q", m.ID, got)
		}
	}
}

func TestBroadcastDropsOnFullQueue(t *testing.T) {
	ch := NewChannel(nil, "job-status")

	slow := newMember("slow", 16)
	ch.Join(slow)

	// Overfill well past the queue; Broadcast must return promptly instead of
	// blocking on the stalled member.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			ch.Broadcast("other", []byte("x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on a full member queue")
	}

	if got := len(drain(slow)); got != 16 {
		t.Fatalf("expected the queue capacity worth of frames, got %d", got)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	ch := NewChannel(nil, "job-status")

	m := newMember("m", 8)
	ch.Join(m)
	ch.Leave("m")

	if ch.Size() != 0 {
		t.Fatalf("member still present after leave")
	}

	ch.Broadcast("other", []byte("late"))
	if got := drain(m); len(got) != 0 {
		t.Fatalf("departed member received frames: %q", got)
	}

	select {
	case <-m.Done():
	default:
		t.Fatalf("leave must signal member shutdown")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d within limit rejected", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("event over limit allowed")
	}

	// Old events fall out of the window.
	if !rl.Allow(now.Add(2 * time.Minute)) {
		t.Fatalf("event after window expiry rejected")
	}
}
