package jobstatus

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"foodscan/cmd/internal/relay"
)

func TestRelayBusFanoutExcludesSender(t *testing.T) {
	srv := httptest.NewServer(relay.NewGateway(nil, nil))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/relay/job-status"

	producer := NewRelayBus(nil, url, "producer")
	defer producer.Close()
	consumer := NewRelayBus(nil, url, "consumer")
	defer consumer.Close()

	var mu sync.Mutex
	var consumerGot []Message
	consumer.Subscribe(func(m Message) {
		mu.Lock()
		consumerGot = append(consumerGot, m)
		mu.Unlock()
	})

	var producerEcho []Message
	producer.Subscribe(func(m Message) {
		mu.Lock()
		producerEcho = append(producerEcho, m)
		mu.Unlock()
	})

	rec := Record{Key: "ocr-1", State: StateCompleted, Message: "done", CreatedAt: time.Now().UTC()}

	// The buses dial asynchronously; republish until the consumer sees the
	// message (duplicate deliveries are harmless by design).
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := producer.Publish(ctx, rec); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		mu.Lock()
		n := len(consumerGot)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("consumer never received the broadcast")
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	got := consumerGot[0]
	if got.Sender != "producer" || got.Record.Key != "ocr-1" || got.Record.State != StateCompleted {
		t.Fatalf("unexpected message: %+v", got)
	}
	if len(producerEcho) != 0 {
		t.Fatalf("producer received its own broadcast: %+v", producerEcho)
	}
}

func TestRelayBusPublishWithoutConnectionIsNonFatal(t *testing.T) {
	// Nothing listens on this address; the bus must drop rather than fail.
	b := NewRelayBus(nil, "ws://127.0.0.1:1/relay/job-status", "lonely")
	defer b.Close()

	rec := Record{Key: "ocr-2", State: StateProcessing, Message: "working", CreatedAt: time.Now().UTC()}
	if err := b.Publish(context.Background(), rec); err != nil {
		t.Fatalf("disconnected publish must be a no-op, got %v", err)
	}
}
