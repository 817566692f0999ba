package comlink

// Transferable is an opaque handle a concrete Endpoint knows how to move
// (rather than copy) alongside a posted message.
type Transferable interface{}

// InboundMessage is what an Endpoint delivers to a listener: the raw
// payload and, if the concrete transport has one, the origin string the
// exposer's allow-list is checked against.
type InboundMessage struct {
	Data   []byte
	Origin string
}

// MessageHandler receives inbound messages posted to an Endpoint.
type MessageHandler func(msg InboundMessage)

// Endpoint is the minimal contract over a bidirectional channel that the
// core consumes but does not own: post a message with
// optional transferables, subscribe/unsubscribe to incoming messages.
// Concrete adapters live in package transport; the core never inspects an
// Endpoint beyond this interface and the two optional capabilities below.
type Endpoint interface {
	Post(data []byte, transferables []Transferable) error
	Listen(h MessageHandler)
	Unlisten(h MessageHandler)
}

// Starter is an optional Endpoint capability, invoked before first use and
// again after a port-shaped value is received via HANDLER decoding.
type Starter interface {
	Start() error
}

// EndpointCloser is an optional Endpoint capability. It is invoked only
// when the concrete endpoint is a port-like sub-channel, as determined by
// a capability probe set at wrap/attach time.
type EndpointCloser interface {
	Close() error
}

// startEndpoint invokes the Start capability if present. The correlator
// calls this before its first outbound call, and Expose calls it once its
// listener is installed.
func startEndpoint(ep Endpoint) error {
	if s, ok := ep.(Starter); ok {
		return s.Start()
	}
	return nil
}

// closeEndpoint invokes the Close capability if present. portLike records
// whether this endpoint was identified, at wrap/attach time, as a
// port-shaped sub-channel; non-port-like endpoints (e.g. a long-lived
// shared transport) are never closed implicitly.
func closeEndpoint(ep Endpoint, portLike bool) error {
	if !portLike {
		return nil
	}
	if c, ok := ep.(EndpointCloser); ok {
		return c.Close()
	}
	return nil
}
