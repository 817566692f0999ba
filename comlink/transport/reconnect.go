package transport

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/sammck-go/comlink/comlink"
)

// DialFunc establishes one fresh underlying Endpoint, e.g. dialing a new
// WebSocket connection and wrapping it with NewWebSocketEndpoint.
type DialFunc func(ctx context.Context) (comlink.Endpoint, error)

// ReconnectingEndpoint wraps a DialFunc with a backoff-paced reconnect
// loop so a long-lived comlink.Wrap survives transient transport drops.
// Listeners registered before the first successful dial, or across a
// reconnect, are replayed onto each new underlying Endpoint.
type ReconnectingEndpoint struct {
	dial   DialFunc
	ctx    context.Context
	cancel context.CancelFunc

	// MaxInterval bounds the backoff delay between dial attempts; zero
	// uses backoff.Backoff's own default.
	MaxInterval time.Duration

	mu       sync.Mutex
	current  comlink.Endpoint
	handlers []comlink.MessageHandler
	closed   bool
}

// NewReconnectingEndpoint constructs a ReconnectingEndpoint that calls
// dial to (re)establish its underlying transport. ctx bounds the
// connection loop's lifetime; cancelling it stops further reconnect
// attempts. Post returns context.Canceled while no underlying Endpoint
// has been connected; a Post that fails on a connected Endpoint redials
// before returning that failure.
func NewReconnectingEndpoint(ctx context.Context, dial DialFunc) *ReconnectingEndpoint {
	ctx, cancel := context.WithCancel(ctx)
	return &ReconnectingEndpoint{dial: dial, ctx: ctx, cancel: cancel}
}

// Start dials the first underlying connection, retrying with backoff until
// ctx is done.
func (r *ReconnectingEndpoint) Start() error {
	ep, err := r.connectLoop()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.current = ep
	handlers := append([]comlink.MessageHandler(nil), r.handlers...)
	r.mu.Unlock()
	for _, h := range handlers {
		ep.Listen(h)
	}
	return startIfStarter(ep)
}

func startIfStarter(ep comlink.Endpoint) error {
	if s, ok := ep.(comlink.Starter); ok {
		return s.Start()
	}
	return nil
}

func (r *ReconnectingEndpoint) connectLoop() (comlink.Endpoint, error) {
	b := &backoff.Backoff{Max: r.MaxInterval}
	for {
		ep, err := r.dial(r.ctx)
		if err == nil {
			return ep, nil
		}
		select {
		case <-r.ctx.Done():
			return nil, r.ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

func (r *ReconnectingEndpoint) Post(data []byte, transferables []comlink.Transferable) error {
	r.mu.Lock()
	ep := r.current
	r.mu.Unlock()
	if ep == nil {
		return context.Canceled
	}
	if err := ep.Post(data, transferables); err != nil {
		r.reconnect()
		return err
	}
	return nil
}

func (r *ReconnectingEndpoint) reconnect() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	ep, err := r.connectLoop()
	if err != nil {
		return
	}
	r.mu.Lock()
	r.current = ep
	handlers := append([]comlink.MessageHandler(nil), r.handlers...)
	r.mu.Unlock()
	for _, h := range handlers {
		ep.Listen(h)
	}
	_ = startIfStarter(ep)
}

func (r *ReconnectingEndpoint) Listen(h comlink.MessageHandler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	ep := r.current
	r.mu.Unlock()
	if ep != nil {
		ep.Listen(h)
	}
}

func (r *ReconnectingEndpoint) Unlisten(h comlink.MessageHandler) {
	r.mu.Lock()
	for i, existing := range r.handlers {
		if funcEqual(existing, h) {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			break
		}
	}
	ep := r.current
	r.mu.Unlock()
	if ep != nil {
		ep.Unlisten(h)
	}
}

// Close stops the reconnect loop and closes the current underlying
// Endpoint, if it is closeable.
func (r *ReconnectingEndpoint) Close() error {
	r.mu.Lock()
	r.closed = true
	ep := r.current
	r.mu.Unlock()
	r.cancel()
	if c, ok := ep.(comlink.EndpointCloser); ok {
		return c.Close()
	}
	return nil
}
