package hub

import (
	"context"
	"testing"
	"time"
)

// attach registers a connection-less client so the fan-out can be observed
// directly on its queue.
func attach(t *testing.T, h *Hub, buffer int) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, buffer)}
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept registration")
	}
	return c
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func TestBroadcastFanOut(t *testing.T) {
	h, _ := startHub(t)
	a := attach(t, h, 4)
	b := attach(t, h, 4)

	if err := h.BroadcastJSON(map[string]string{"type": "started"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for name, c := range map[string]*Client{"a": a, "b": b} {
		msg, ok := receive(t, c)
		if !ok {
			t.Fatalf("client %s queue closed", name)
		}
		if string(msg.Data) != `{"type":"started"}` {
			t.Errorf("client %s got %s", name, msg.Data)
		}
	}
	if got := h.ClientCount(); got != 2 {
		t.Errorf("ClientCount = %d, want 2", got)
	}
}

func TestSlowClientDropped(t *testing.T) {
	h, _ := startHub(t)
	slow := attach(t, h, 1)

	h.Broadcast(NewJSONMessage([]byte(`1`)))
	h.Broadcast(NewJSONMessage([]byte(`2`)))

	// Don't read until the hub has processed both broadcasts.
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.ClientCount(); got != 0 {
		t.Fatalf("ClientCount = %d, want 0", got)
	}

	if msg, ok := receive(t, slow); !ok || string(msg.Data) != "1" {
		t.Fatalf("first message should be delivered, got %q ok=%v", msg.Data, ok)
	}
	if _, ok := receive(t, slow); ok {
		t.Error("expected queue to be closed after overflow")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h, cancel := startHub(t)
	c := attach(t, h, 1)

	cancel()
	if _, ok := receive(t, c); ok {
		t.Error("expected client queue to close on shutdown")
	}

	deadline := time.Now().Add(time.Second)
	for h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.IsRunning() {
		t.Error("hub still running after cancel")
	}
}

func TestEncodeJSON(t *testing.T) {
	if _, err := EncodeJSON(make(chan int)); err == nil {
		t.Error("expected error for unencodable value")
	}
}
