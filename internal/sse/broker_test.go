package sse

import (
	"context"
	"testing"
	"time"

	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/pkg/logger"
)

const receiveTimeout = time.Second

func startTestBroker(t *testing.T, opts ...BrokerOption) Broker {
	t.Helper()

	broker := NewBroker(logger.NewNop(), opts...)
	if err := broker.Start(context.Background()); err != nil {
		t.Fatalf("start broker: %v", err)
	}
	t.Cleanup(func() { _ = broker.Stop() })

	return broker
}

func receiveEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("event channel closed before delivery")
		}
		return event
	case <-time.After(receiveTimeout):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	broker := startTestBroker(t)

	events, cleanup := broker.Subscribe(context.Background())
	defer cleanup()

	clickedAt := time.Now()
	published := NewClickEvent("https://www.amazon.com", clickedAt, 5)
	if err := broker.Publish(context.Background(), published); err != nil {
		t.Fatalf("publish: %v", err)
	}

	received := receiveEvent(t, events)
	if received.Type != EventTypeNewClick {
		t.Errorf("type: got %q, want %q", received.Type, EventTypeNewClick)
	}

	data, ok := received.Data.(NewClickData)
	if !ok {
		t.Fatalf("payload type: got %T, want NewClickData", received.Data)
	}
	if data.LinkURL != "https://www.amazon.com" {
		t.Errorf("link url: got %q", data.LinkURL)
	}
	if data.Total != 5 {
		t.Errorf("total: got %d, want 5", data.Total)
	}
	if data.EventID == "" || data.EventID != received.ID {
		t.Errorf("event id mismatch: %q vs %q", data.EventID, received.ID)
	}
}

func TestBroker_FanOutToAllSubscribers(t *testing.T) {
	broker := startTestBroker(t)

	const subscriberCount = 5

	subscribers := make([]<-chan Event, subscriberCount)
	cleanups := make([]func(), subscriberCount)
	for i := 0; i < subscriberCount; i++ {
		events, cleanup := broker.Subscribe(context.Background())
		subscribers[i] = events
		cleanups[i] = cleanup
	}
	defer func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	if broker.ClientCount() != subscriberCount {
		t.Fatalf("client count: got %d, want %d", broker.ClientCount(), subscriberCount)
	}

	event := NewStatsUpdateEvent(domain.Stats{Amazon: 1, Walmart: 2, Total: 3})
	if err := broker.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, events := range subscribers {
		received := receiveEvent(t, events)
		if received.Type != EventTypeStatsUpdate {
			t.Errorf("subscriber %d: type got %q", i, received.Type)
		}
	}
}

func TestBroker_UnsubscribedClientMissesEvents(t *testing.T) {
	broker := startTestBroker(t)

	events, cleanup := broker.Subscribe(context.Background())
	cleanup()

	// The channel is closed by cleanup; the event goes nowhere.
	_ = broker.Publish(context.Background(), NewClickEvent("https://www.walmart.com", time.Now(), 1))

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected no delivery after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		// Channel may close asynchronously; either way nothing was delivered.
	}

	if broker.ClientCount() != 0 {
		t.Errorf("client count after unsubscribe: got %d, want 0", broker.ClientCount())
	}
}

func TestBroker_RejectsOverMaxClients(t *testing.T) {
	broker := startTestBroker(t, WithMaxClients(1))

	_, cleanup := broker.Subscribe(context.Background())
	defer cleanup()

	events, cleanup2 := broker.Subscribe(context.Background())
	defer cleanup2()

	// Rejection is signalled by an already-closed channel.
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel for rejected subscriber")
		}
	case <-time.After(receiveTimeout):
		t.Fatal("expected immediate rejection")
	}
}

func TestBroker_PublishBufferFull(t *testing.T) {
	broker := startTestBroker(t, WithEventBufferSize(1))

	// Stop the fan-out loop so the publish buffer cannot drain.
	_ = broker.Stop()

	_ = broker.Publish(context.Background(), NewClickEvent("https://www.amazon.com", time.Now(), 1))
	err := broker.Publish(context.Background(), NewClickEvent("https://www.amazon.com", time.Now(), 2))
	if err == nil {
		t.Fatal("expected error when publish buffer is full")
	}
}

func TestBroker_StopDisconnectsSubscribers(t *testing.T) {
	broker := NewBroker(logger.NewNop())
	if err := broker.Start(context.Background()); err != nil {
		t.Fatalf("start broker: %v", err)
	}

	events, cleanup := broker.Subscribe(context.Background())
	defer cleanup()

	if err := broker.Stop(); err != nil {
		t.Fatalf("stop broker: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel close on broker stop")
		}
	case <-time.After(receiveTimeout):
		t.Fatal("timeout waiting for channel close")
	}
}
