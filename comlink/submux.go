package comlink

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
)

// subChannelEnvelope multiplexes many logical comlink sessions over one
// real Endpoint. A proxy-marked value's fresh sub-channel never has to
// hand a live object across a transport boundary -- only this small
// JSON-tagged envelope, which works the same way whether the real
// Endpoint is the in-process pipe, a WebSocket connection, or a
// multiplexed SSH channel.
type subChannelEnvelope struct {
	Sub  string          `json:"sub,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// endpointMux owns every subEndpoint multiplexed over one real Endpoint.
// Exactly one mux exists per real Endpoint (memoized in muxRegistry) so
// that the side minting a sub-channel (proxyTransferHandler.Serialize) and
// the side wrapping it (Deserialize) agree on the same sub-channel id
// referring to the same logical connection, even though each side only
// ever sees its own half of the real Endpoint.
type endpointMux struct {
	real Endpoint

	mu   sync.Mutex
	subs map[string]*subEndpoint
}

var (
	muxRegistry   = map[Endpoint]*endpointMux{}
	muxRegistryMu sync.Mutex
)

// muxFor returns the endpointMux multiplexed over real, creating it (and
// installing its single demultiplexing listener) on first use.
func muxFor(real Endpoint) *endpointMux {
	muxRegistryMu.Lock()
	defer muxRegistryMu.Unlock()
	m, ok := muxRegistry[real]
	if !ok {
		m = &endpointMux{real: real, subs: make(map[string]*subEndpoint)}
		real.Listen(m.demux)
		muxRegistry[real] = m
	}
	return m
}

// demux inspects every inbound message on the real endpoint: a message
// tagged with a non-empty "sub" id is a multiplexed sub-channel message
// and is routed to that sub-channel's own listeners; anything else (a
// plain root-level request/reply Message has no "sub" key) is left alone
// for the endpoint's own correlator to handle.
func (m *endpointMux) demux(inb InboundMessage) {
	var env subChannelEnvelope
	if err := json.Unmarshal(inb.Data, &env); err != nil || env.Sub == "" {
		return
	}
	m.mu.Lock()
	sub, ok := m.subs[env.Sub]
	m.mu.Unlock()
	if !ok {
		return
	}
	sub.deliver(InboundMessage{Data: env.Data, Origin: inb.Origin})
}

// open returns the subEndpoint for id, creating it on first use.
func (m *endpointMux) open(id string) *subEndpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		s = &subEndpoint{mux: m, id: id}
		m.subs[id] = s
	}
	return s
}

func (m *endpointMux) forget(id string) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}

// subEndpoint is one logical comlink session multiplexed over a real
// Endpoint's message stream. It satisfies Endpoint and EndpointCloser, so
// the rest of the package (correlator, exposer, Proxy) never has to know
// its messages are tagged and demultiplexed rather than carried on their
// own dedicated transport connection.
type subEndpoint struct {
	mux *endpointMux
	id  string

	mu       sync.Mutex
	handlers []MessageHandler
	closed   bool
}

var errSubChannelClosed = errors.New("comlink: sub-channel is closed")

func (s *subEndpoint) Post(data []byte, transferables []Transferable) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errSubChannelClosed
	}
	b, err := json.Marshal(subChannelEnvelope{Sub: s.id, Data: data})
	if err != nil {
		return err
	}
	return s.mux.real.Post(b, transferables)
}

func (s *subEndpoint) Listen(h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *subEndpoint) Unlisten(h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hp := reflect.ValueOf(h).Pointer()
	filtered := s.handlers[:0]
	for _, existing := range s.handlers {
		if reflect.ValueOf(existing).Pointer() != hp {
			filtered = append(filtered, existing)
		}
	}
	s.handlers = filtered
}

func (s *subEndpoint) deliver(msg InboundMessage) {
	s.mu.Lock()
	handlers := append([]MessageHandler(nil), s.handlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

// Close marks this sub-channel closed and removes it from its mux. Called
// by closeEndpoint when the exposer side of a proxy-marked value tears
// down after RELEASE.
func (s *subEndpoint) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.mux.forget(s.id)
	return nil
}
