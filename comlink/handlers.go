package comlink

import (
	"encoding/json"
	"fmt"
)

// TransferHandler converts values that RAW (structured-clone) encoding
// cannot carry as-is into a named, serialized payload and back. Registered
// handlers are consulted in registration order for every outbound value.
type TransferHandler interface {
	// CanHandle reports whether this handler should own encoding of v.
	CanHandle(v interface{}) bool
	// Serialize renders v into a JSON payload, plus any transferables the
	// endpoint should move rather than copy alongside it. ep is the
	// endpoint the encoded value is about to be posted on, which the
	// built-in "proxy" handler needs to mint its fresh sub-channel on the
	// same underlying connection.
	Serialize(v interface{}, ep Endpoint) (payload json.RawMessage, transferables []Transferable, err error)
	// Deserialize reconstructs a value from a payload produced by
	// Serialize, given the endpoint the message arrived on and whether
	// that message used the legacy wire encoding.
	Deserialize(payload json.RawMessage, ep Endpoint, legacy bool) (interface{}, error)
}

// HandlerRegistry is an ordered, named set of TransferHandlers: named
// entries, registered once, looked up both by name (inbound HANDLER
// decode) and by linear scan over CanHandle (outbound encode).
type HandlerRegistry struct {
	order  []string
	byName map[string]TransferHandler
}

func newHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byName: make(map[string]TransferHandler)}
}

// NewTransferHandlers returns a fresh registry with the built-in "proxy"
// and "throw" handlers pre-registered, for use with WithHandlers and
// WithWrapHandlers when an application needs handlers beyond the defaults
// without touching the shared DefaultHandlers registry.
func NewTransferHandlers() *HandlerRegistry {
	r := newHandlerRegistry()
	r.Register("proxy", proxyTransferHandler{})
	r.Register("throw", throwTransferHandler{})
	return r
}

// Register adds a named handler. Registering the same name twice replaces
// the previous entry in place, preserving its position in the scan order.
func (r *HandlerRegistry) Register(name string, h TransferHandler) {
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = h
}

func (r *HandlerRegistry) byNameLookup(name string) (TransferHandler, bool) {
	h, ok := r.byName[name]
	return h, ok
}

// find returns the first registered handler (in registration order) that
// claims v, and the name it was registered under.
func (r *HandlerRegistry) find(v interface{}) (string, TransferHandler, bool) {
	for _, name := range r.order {
		h := r.byName[name]
		if h.CanHandle(v) {
			return name, h, true
		}
	}
	return "", nil, false
}

// DefaultHandlers is the registry every Expose and Wrap call consults
// unless constructed with explicit options. "proxy" and "throw" are
// built in and must not be removed.
var DefaultHandlers = newHandlerRegistry()

func init() {
	DefaultHandlers.Register("proxy", proxyTransferHandler{})
	DefaultHandlers.Register("throw", throwTransferHandler{})
}

// proxyTransferHandler implements the built-in "proxy" handler: claims
// any value stamped by Proxy or freshly produced by CONSTRUCT, serializes
// it by spinning up a fresh sub-channel multiplexed over the same real
// Endpoint (see submux.go) and exposing the value on it; Deserialize
// opens the matching sub-channel on the receiving side's own real
// Endpoint and wraps it in a new client proxy. A literal transferable
// port has no portable Go analogue once the real Endpoint is a network
// connection (WebSocket, SSH) rather than two objects sharing one
// process's heap, so the fresh sub-channel is carried as a small in-band
// id instead of an out-of-band transferable.
type proxyTransferHandler struct{}

func (proxyTransferHandler) CanHandle(v interface{}) bool {
	return isProxyMarked(v)
}

type proxyHandlerPayload struct {
	Sub string `json:"sub"`
}

func (proxyTransferHandler) Serialize(v interface{}, ep Endpoint) (json.RawMessage, []Transferable, error) {
	id := NewCallID()
	sub := muxFor(ep).open(id)
	Expose(v, sub, withPortLike())
	unmarkProxy(v)
	payload, err := json.Marshal(proxyHandlerPayload{Sub: id})
	if err != nil {
		return nil, nil, err
	}
	return payload, nil, nil
}

func (proxyTransferHandler) Deserialize(payload json.RawMessage, ep Endpoint, legacy bool) (interface{}, error) {
	var p proxyHandlerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("comlink: decoding proxy sub-channel id: %w", err)
	}
	sub := muxFor(ep).open(p.Sub)
	return Wrap(sub, withWrapPortLike(), WithLegacyEncoding(legacy)), nil
}

// throwTransferHandler implements the built-in "throw" handler: claims Go
// error values -- including panics the exposer has normalized to
// *panicError -- flattens them to {name, message, stack}, and re-raises
// them as a *RemoteError on the receiving side.
type throwTransferHandler struct{}

func (throwTransferHandler) CanHandle(v interface{}) bool {
	_, ok := v.(error)
	return ok
}

type thrownPayload struct {
	IsError bool   `json:"isError"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (throwTransferHandler) Serialize(v interface{}, ep Endpoint) (json.RawMessage, []Transferable, error) {
	err, _ := v.(error)
	tp := thrownPayload{IsError: true, Name: fmt.Sprintf("%T", err), Message: err.Error()}
	switch e := v.(type) {
	case *panicError:
		tp.Name = "panic"
		tp.Stack = string(e.stack)
	case *RemoteError:
		tp.Name = e.name
		tp.Stack = e.stack
	}
	payload, mErr := json.Marshal(tp)
	return payload, nil, mErr
}

func (throwTransferHandler) Deserialize(payload json.RawMessage, ep Endpoint, legacy bool) (interface{}, error) {
	var tp thrownPayload
	if err := json.Unmarshal(payload, &tp); err != nil {
		return nil, err
	}
	return &RemoteError{name: tp.Name, message: tp.Message, stack: tp.Stack}, nil
}

// RemoteError is what a caller receives for a remote throw: the far side's
// error flattened to a name, message, and (for panics) stack. Error
// reports just the message, so remote errors read the same as local ones.
type RemoteError struct {
	name    string
	message string
	stack   string
}

func (e *RemoteError) Error() string { return e.message }

// Name reports the type of the error as the far side saw it.
func (e *RemoteError) Name() string { return e.name }

// Stack reports the remote stack trace, when one was captured.
func (e *RemoteError) Stack() string { return e.stack }
