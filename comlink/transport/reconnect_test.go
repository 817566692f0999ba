package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sammck-go/comlink/comlink"
)

func TestReconnectingEndpointRetriesTheInitialDial(t *testing.T) {
	a, _ := NewInProcessPair()
	attempts := 0
	dial := func(ctx context.Context) (comlink.Endpoint, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient dial failure")
		}
		return a, nil
	}

	r := NewReconnectingEndpoint(context.Background(), dial)
	r.MaxInterval = time.Millisecond
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if attempts != 3 {
		t.Errorf("dial ran %d times, want 3 (two transient failures, then success)", attempts)
	}
}

// TestReconnectingEndpointReplaysListeners covers the listener-replay
// contract: handlers registered before Start must be attached to whichever
// underlying Endpoint the dial eventually produces.
func TestReconnectingEndpointReplaysListeners(t *testing.T) {
	a, b := NewInProcessPair()
	r := NewReconnectingEndpoint(context.Background(), func(ctx context.Context) (comlink.Endpoint, error) {
		return a, nil
	})

	got := make(chan []byte, 1)
	r.Listen(func(msg comlink.InboundMessage) { got <- msg.Data })
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := b.Post([]byte("ping"), nil); err != nil {
		t.Fatalf("peer Post: %v", err)
	}
	select {
	case data := <-got:
		if string(data) != "ping" {
			t.Errorf("received %q, want %q", data, "ping")
		}
	case <-time.After(time.Second):
		t.Fatalf("listener registered before Start never saw the peer's message")
	}

	echo := make(chan []byte, 1)
	b.Listen(func(msg comlink.InboundMessage) { echo <- msg.Data })
	if err := r.Post([]byte("pong"), nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	select {
	case data := <-echo:
		if string(data) != "pong" {
			t.Errorf("peer received %q, want %q", data, "pong")
		}
	case <-time.After(time.Second):
		t.Fatalf("Post through the reconnecting endpoint never reached the peer")
	}
}

func TestReconnectingEndpointStartFailsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReconnectingEndpoint(ctx, func(ctx context.Context) (comlink.Endpoint, error) {
		return nil, errors.New("always down")
	})
	r.MaxInterval = time.Millisecond
	if err := r.Start(); err == nil {
		t.Errorf("Start succeeded with a cancelled context and a failing dial, want an error")
	}
}
