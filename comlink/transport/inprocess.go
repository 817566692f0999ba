// Package transport provides concrete Endpoint adapters for comlink: an
// in-process pipe pair, a WebSocket-backed endpoint, an SSH-channel-backed
// endpoint for multiplexing many comlink sessions over one transport
// connection, and a reconnecting decorator for long-lived clients. None of
// these are part of the core dispatch engine (package comlink), which
// consumes endpoints through the Endpoint interface and never constructs
// one itself.
package transport

import (
	"sync"

	"github.com/sammck-go/comlink/comlink"
)

// pipeEndpoint is an in-memory Endpoint wired directly to a peer
// pipeEndpoint: posting to one delivers to the other's listeners on a
// fresh goroutine, like the two ends of an in-process message channel.
type pipeEndpoint struct {
	mu       sync.Mutex
	peer     *pipeEndpoint
	handlers []comlink.MessageHandler
	closed   bool
	origin   string
}

// NewInProcessPair allocates two Endpoints wired to each other: useful for
// tests and for demos that want to exercise Expose/Wrap without a real
// network transport.
func NewInProcessPair() (a, b comlink.Endpoint) {
	pa := &pipeEndpoint{}
	pb := &pipeEndpoint{}
	pa.peer = pb
	pb.peer = pa
	return pa, pb
}

func (p *pipeEndpoint) Post(data []byte, _ []comlink.Transferable) error {
	p.mu.Lock()
	peer := p.peer
	closed := p.closed
	p.mu.Unlock()
	if closed || peer == nil {
		return nil
	}
	go peer.deliver(comlink.InboundMessage{Data: data, Origin: p.origin})
	return nil
}

func (p *pipeEndpoint) deliver(msg comlink.InboundMessage) {
	p.mu.Lock()
	handlers := append([]comlink.MessageHandler(nil), p.handlers...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (p *pipeEndpoint) Listen(h comlink.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

func (p *pipeEndpoint) Unlisten(h comlink.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.handlers {
		if funcEqual(existing, h) {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			return
		}
	}
}

func (p *pipeEndpoint) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
