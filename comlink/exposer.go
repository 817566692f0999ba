package comlink

import (
	"fmt"
	"runtime/debug"
)

// originLogger is the Logger used for the warnings the exposer emits on
// its own: an inbound message from a disallowed origin, and a panic in a
// finalizer hook after RELEASE.
var originLogger = NewLogger("comlink/exposer", LogLevelWarning)

// ExposeOption configures an Expose call. The zero configuration permits
// every origin and uses DefaultHandlers.
type ExposeOption func(*exposeConfig)

type exposeConfig struct {
	origins  *OriginPolicy
	registry *HandlerRegistry
	portLike bool
}

// withPortLike is an unexported option the built-in proxy transfer
// handler uses to mark the sub-channel it mints per exposed value: unlike
// a top-level Expose call on a long-lived transport, this endpoint should
// be closed once its single exposed value is released.
func withPortLike() ExposeOption {
	return func(c *exposeConfig) { c.portLike = true }
}

// WithOrigins restricts an exposed endpoint to the given allow-list.
// Without this option every origin is accepted.
func WithOrigins(p *OriginPolicy) ExposeOption {
	return func(c *exposeConfig) { c.origins = p }
}

// WithHandlers overrides the transfer-handler registry consulted while
// encoding and decoding this endpoint's values.
func WithHandlers(r *HandlerRegistry) ExposeOption {
	return func(c *exposeConfig) { c.registry = r }
}

// exposer is the dispatch engine bound to one (value, endpoint) pair: a
// single inbound-message switch that validates, routes one of the six
// operations, and produces exactly one reply for every request from an
// allowed origin (a request from a disallowed origin gets none).
type exposer struct {
	value    interface{}
	ep       Endpoint
	corr     *correlator
	origins  *OriginPolicy
	registry *HandlerRegistry
	portLike bool
}

// Expose makes value available for remote GET/SET/APPLY/CONSTRUCT/
// ENDPOINT/RELEASE calls arriving on ep.
func Expose(value interface{}, ep Endpoint, opts ...ExposeOption) {
	cfg := &exposeConfig{registry: DefaultHandlers}
	for _, o := range opts {
		o(cfg)
	}
	corr := newCorrelator(ep, cfg.registry)
	ex := &exposer{value: value, ep: ep, corr: corr, origins: cfg.origins, registry: cfg.registry, portLike: cfg.portLike}
	corr.setRequestHandler(ex.handle)
	// An exposed endpoint never initiates a call of its own, so nothing
	// else would ever invoke its Start capability. Errors surface on the
	// first Post instead.
	_ = startEndpoint(ep)
}

func (ex *exposer) handle(msg *Message, legacy bool, origin string) {
	if !ex.origins.Accepts(origin) {
		originLogger.WLogf("dropping request from disallowed origin %q", origin)
		return
	}
	if msg.Type == OpRelease {
		ex.handleRelease(msg, legacy)
		return
	}

	reply := &Message{ID: msg.ID, Type: msg.Type}
	result, opErr := ex.dispatch(msg, legacy)

	var wv WireValue
	var transferables []Transferable
	if opErr != nil {
		wv, transferables, _ = toWire(opErr, ex.ep, ex.registry)
	} else {
		var encErr error
		wv, transferables, encErr = toWire(result, ex.ep, ex.registry)
		if encErr != nil {
			wv, transferables, _ = toWire(unserializableError(encErr.Error()), ex.ep, ex.registry)
		}
	}
	reply.Value = &wv
	_ = ex.corr.reply(reply, legacy, transferables)
}

// handleRelease implements RELEASE: the reply (the empty value) is
// posted first, and only afterward does the exposer tear down --
// remove its listener, close a port-like endpoint, and invoke the
// finalizer hook exactly once.
func (ex *exposer) handleRelease(msg *Message, legacy bool) {
	target, err := getPath(ex.value, msg.Path)

	reply := &Message{ID: msg.ID, Type: msg.Type}
	if err != nil {
		wv, transferables, _ := toWire(err, ex.ep, ex.registry)
		reply.Value = &wv
		_ = ex.corr.reply(reply, legacy, transferables)
		return
	}

	empty := WireValue{Tag: TagRaw, Payload: []byte("null")}
	reply.Value = &empty
	_ = ex.corr.reply(reply, legacy, nil)

	ex.corr.detach()
	if ex.portLike {
		_ = closeEndpoint(ex.ep, true)
	}
	if f, ok := target.(Finalizer); ok {
		// The reply is already posted; a panicking hook has no caller
		// left to reject, so contain it here.
		func() {
			defer func() {
				if r := recover(); r != nil {
					originLogger.WLogf("panic in finalizer hook: %v", r)
				}
			}()
			f.ComlinkFinalize()
		}()
	}
}

// unserializableError is returned to the caller in place of a return value
// that no handler and no RAW encoding could carry.
type unserializableError string

func (e unserializableError) Error() string { return "comlink: unserializable return value: " + string(e) }

// panicError wraps a value recovered from a panicking dispatch so the
// throw handler can carry it -- and its stack -- back to the caller as a
// rejection instead of letting it take down the exposer's goroutine.
type panicError struct {
	value interface{}
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("comlink: panic in exposed operation: %v", e.value) }

func (ex *exposer) dispatch(msg *Message, legacy bool) (result interface{}, opErr error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			opErr = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	args, err := ex.decodeArgs(msg.ArgumentList, legacy)
	if err != nil {
		return nil, err
	}
	switch msg.Type {
	case OpGet:
		return getPath(ex.value, msg.Path)
	case OpSet:
		if msg.Value == nil {
			return nil, errMissingValue
		}
		v, err := fromWire(*msg.Value, ex.ep, ex.registry, legacy)
		if err != nil {
			return nil, err
		}
		if err := setPath(ex.value, msg.Path, v); err != nil {
			return nil, err
		}
		return true, nil
	case OpApply:
		return applyPath(ex.value, msg.Path, args)
	case OpConstruct:
		return constructPath(ex.value, msg.Path, args)
	case OpEndpoint:
		return Proxy(ex.value), nil
	default:
		return nil, nil
	}
}

func (ex *exposer) decodeArgs(argList []WireValue, legacy bool) ([]interface{}, error) {
	if len(argList) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(argList))
	for i, a := range argList {
		v, err := fromWire(a, ex.ep, ex.registry, legacy)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

var errMissingValue = unserializableError("SET message carried no value")
