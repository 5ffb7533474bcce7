package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/calroth/questboard/internal/events"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	ev := events.Event{
		Type:     events.TypePointsAwarded,
		MemberID: 42,
		Extra:    map[string]any{"amount": float64(20)},
	}
	hub.Broadcast(ev)

	// Check both clients received the event
	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got events.Event
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != events.TypePointsAwarded {
				t.Errorf("expected type %s, got %s", events.TypePointsAwarded, got.Type)
			}
			if got.MemberID != 42 {
				t.Errorf("expected member 42, got %d", got.MemberID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(events.Event{Type: events.TypeAssignmentChanged})
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(events.Event{Type: events.TypeStreakUpdated, MemberID: int64(i)})
	}

	// This should drop the message, not panic or block
	hub.Broadcast(events.Event{Type: events.TypeStreakUpdated, MemberID: 999})

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestRelayForwardsBusEvents(t *testing.T) {
	hub := NewHub(slog.Default())
	bus := events.NewBus()

	c := mockClient(hub)
	hub.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Relay(ctx, bus)

	// Relay subscribes asynchronously; give it a moment before publishing.
	time.Sleep(10 * time.Millisecond)
	bus.PointsAwarded(7, 20, "quest_complete")

	select {
	case data := <-c.send:
		var got events.Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != events.TypePointsAwarded || got.MemberID != 7 {
			t.Errorf("relayed event = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for relayed event")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Spawn goroutines that register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(events.Event{Type: events.TypeAssignmentChanged})
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients after churn, got %d", got)
	}
}
