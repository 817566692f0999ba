package comlink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// requestHandler processes an inbound Message that is not the reply to a
// pending call -- i.e. a genuine request from the far side. Exposer
// installs one of these on a correlator when Expose attaches to an
// endpoint.
type requestHandler func(msg *Message, legacy bool, origin string)

// correlator multiplexes a single Endpoint between outbound calls awaiting
// a one-shot reply and inbound requests routed to a requestHandler.
// Replies may interleave arbitrarily; pairing is purely by call id, for
// any number of concurrently in-flight calls.
type correlator struct {
	ep       Endpoint
	registry *HandlerRegistry

	startOnce sync.Once
	startErr  error

	mu         sync.Mutex
	pending    map[string]chan *Message
	onRequest  requestHandler
	listenerFn MessageHandler

	// legacyMode tracks the wire encoding last observed from the far side,
	// so a Proxy that was never told which mode its endpoint uses can
	// still pick up legacy numeric tags once the other side speaks them.
	legacyMode atomic.Bool
}

func newCorrelator(ep Endpoint, registry *HandlerRegistry) *correlator {
	if registry == nil {
		registry = DefaultHandlers
	}
	c := &correlator{
		ep:       ep,
		registry: registry,
		pending:  make(map[string]chan *Message),
	}
	c.listenerFn = c.handleInbound
	ep.Listen(c.listenerFn)
	return c
}

// start lazily invokes the endpoint's Start capability exactly once.
func (c *correlator) start() error {
	c.startOnce.Do(func() {
		c.startErr = startEndpoint(c.ep)
	})
	return c.startErr
}

// setRequestHandler installs the callback invoked for inbound messages
// that are not replies to an outstanding call. Only one handler may be
// installed per correlator; Expose installs it once per endpoint.
func (c *correlator) setRequestHandler(h requestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRequest = h
}

func (c *correlator) handleInbound(inb InboundMessage) {
	msg, legacy, err := decodeMessage(inb.Data)
	if err != nil {
		return
	}
	c.legacyMode.Store(legacy)
	c.mu.Lock()
	ch, isReply := c.pending[msg.ID]
	if isReply {
		delete(c.pending, msg.ID)
	}
	handler := c.onRequest
	c.mu.Unlock()

	if isReply {
		ch <- msg
		return
	}
	if !isKnownOperation(msg.Type) {
		return
	}
	if handler != nil {
		handler(msg, legacy, inb.Origin)
	}
}

// call posts msg and blocks for the matching one-shot reply, or until ctx
// is done. A call id is assigned if msg.ID is empty.
func (c *correlator) call(ctx context.Context, msg *Message, legacy bool, transferables []Transferable) (*Message, error) {
	if err := c.start(); err != nil {
		return nil, fmt.Errorf("comlink: starting endpoint: %w", err)
	}
	if msg.ID == "" {
		msg.ID = NewCallID()
	}
	ch := make(chan *Message, 1)
	c.mu.Lock()
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	data, err := encodeMessage(msg, legacy)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, err
	}
	if err := c.ep.Post(data, transferables); err != nil {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// post sends msg without registering a pending reply; used for RELEASE,
// whose reply carries nothing the sender needs.
func (c *correlator) post(msg *Message, legacy bool, transferables []Transferable) error {
	if msg.ID == "" {
		msg.ID = NewCallID()
	}
	data, err := encodeMessage(msg, legacy)
	if err != nil {
		return err
	}
	return c.ep.Post(data, transferables)
}

// reply posts a one-shot response to an inbound request, reusing the
// request's encoding mode.
func (c *correlator) reply(msg *Message, legacy bool, transferables []Transferable) error {
	data, err := encodeMessage(msg, legacy)
	if err != nil {
		return err
	}
	return c.ep.Post(data, transferables)
}

func (c *correlator) detach() {
	c.ep.Unlisten(c.listenerFn)
}
