package comlink

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
)

// errReleased is returned synchronously, without a round trip, by any
// method called on a Proxy after Release.
var errReleased = fmt.Errorf("comlink: proxy was released")

// WrapOption configures a Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	registry *HandlerRegistry
	portLike bool
	legacy   *bool
}

// WithWrapHandlers overrides the transfer-handler registry this proxy's
// codec consults.
func WithWrapHandlers(r *HandlerRegistry) WrapOption {
	return func(c *wrapConfig) { c.registry = r }
}

// WithLegacyEncoding forces a Proxy to speak the legacy numeric operation
// encoding from its very first call, instead of waiting to observe it on
// an inbound message. Use this when wrapping an endpoint
// already known to be driven by a legacy-encoding peer.
func WithLegacyEncoding(legacy bool) WrapOption {
	return func(c *wrapConfig) { c.legacy = &legacy }
}

func withWrapPortLike() WrapOption {
	return func(c *wrapConfig) { c.portLike = true }
}

// ProxyObject is a local handle on a remote value: property and method
// access is spelled out as explicit methods (Get/Set/Call/Construct/
// Endpoint/Release), and navigating to a nested path is a separate,
// no-message-sent step. Named apart from the Proxy() marking function in
// keys.go, which stamps a value to be sent *as* a reference rather than
// representing one received.
type ProxyObject struct {
	ep       Endpoint
	corr     *correlator
	path     []string
	registry *HandlerRegistry
	forceLeg *bool
	released *atomic.Bool
}

// Wrap attaches a Proxy to ep. The returned Proxy refers to the root
// value exposed on the far side of ep.
func Wrap(ep Endpoint, opts ...WrapOption) *ProxyObject {
	cfg := &wrapConfig{registry: DefaultHandlers}
	for _, o := range opts {
		o(cfg)
	}
	corr := newCorrelator(ep, cfg.registry)
	registerProxy(ep, cfg.portLike)
	p := &ProxyObject{ep: ep, corr: corr, registry: cfg.registry, forceLeg: cfg.legacy, released: &atomic.Bool{}}
	setReleaseFinalizer(p)
	return p
}

// setReleaseFinalizer ties a handle's endpoint refcount to the garbage
// collector: a handle dropped without an explicit
// Release decrements the count, and the last one issues RELEASE and
// closes a port-like endpoint. Explicit Release clears the finalizer.
func setReleaseFinalizer(p *ProxyObject) {
	runtime.SetFinalizer(p, func(stale *ProxyObject) { stale.gcCollect() })
}

func (p *ProxyObject) gcCollect() {
	if p.released.Load() {
		return
	}
	last, portLike := dropProxyRef(p.ep)
	if last {
		_ = p.corr.post(&Message{Type: OpRelease}, p.legacy(), nil)
		_ = closeEndpoint(p.ep, portLike)
	}
}

func (p *ProxyObject) legacy() bool {
	if p.forceLeg != nil {
		return *p.forceLeg
	}
	return p.corr.legacyMode.Load()
}

// Path returns a new Proxy referring to a nested path under the current
// one, without sending any message. The released flag is shared across
// the whole navigation tree of one Wrap: releasing any handle rooted on
// this endpoint rejects every other handle derived from it.
func (p *ProxyObject) Path(segments ...string) *ProxyObject {
	next := make([]string, 0, len(p.path)+len(segments))
	next = append(next, p.path...)
	next = append(next, segments...)
	sub := &ProxyObject{ep: p.ep, corr: p.corr, path: next, registry: p.registry, forceLeg: p.forceLeg, released: p.released}
	if !p.released.Load() {
		registerProxy(p.ep, false)
		setReleaseFinalizer(sub)
	}
	return sub
}

// Get performs a GET at this proxy's path.
func (p *ProxyObject) Get(ctx context.Context) (interface{}, error) {
	if p.released.Load() {
		return nil, errReleased
	}
	msg := &Message{Type: OpGet, Path: p.path}
	reply, err := p.corr.call(ctx, msg, p.legacy(), nil)
	if err != nil {
		return nil, err
	}
	return p.decodeReply(reply)
}

// Set performs a SET at this proxy's path and reports whether the
// remote assignment took effect.
func (p *ProxyObject) Set(ctx context.Context, value interface{}) error {
	if p.released.Load() {
		return errReleased
	}
	wv, transferables, err := toWire(value, p.ep, p.registry)
	if err != nil {
		return err
	}
	msg := &Message{Type: OpSet, Path: p.path, Value: &wv}
	reply, err := p.corr.call(ctx, msg, p.legacy(), transferables)
	if err != nil {
		return err
	}
	_, err = p.decodeReply(reply)
	return err
}

// Call performs an APPLY at this proxy's path. A path whose last segment
// is "bind" sends nothing: the call returns a *ProxyObject for the path
// without that segment, so binding a remote function is a no-op.
func (p *ProxyObject) Call(ctx context.Context, args ...interface{}) (interface{}, error) {
	if p.released.Load() {
		return nil, errReleased
	}
	if n := len(p.path); n > 0 && p.path[n-1] == "bind" {
		root := *p
		root.path = nil
		return root.Path(p.path[:n-1]...), nil
	}
	argList, transferables, err := p.encodeArgs(args)
	if err != nil {
		return nil, err
	}
	msg := &Message{Type: OpApply, Path: p.path, ArgumentList: argList}
	reply, err := p.corr.call(ctx, msg, p.legacy(), transferables)
	if err != nil {
		return nil, err
	}
	return p.decodeReply(reply)
}

// Construct performs a CONSTRUCT at this proxy's path. The remote always
// returns a fresh reference, so the result
// decodes through the "proxy" handler into another *ProxyObject.
func (p *ProxyObject) Construct(ctx context.Context, args ...interface{}) (*ProxyObject, error) {
	if p.released.Load() {
		return nil, errReleased
	}
	argList, transferables, err := p.encodeArgs(args)
	if err != nil {
		return nil, err
	}
	msg := &Message{Type: OpConstruct, Path: p.path, ArgumentList: argList}
	reply, err := p.corr.call(ctx, msg, p.legacy(), transferables)
	if err != nil {
		return nil, err
	}
	v, err := p.decodeReply(reply)
	if err != nil {
		return nil, err
	}
	sub, ok := v.(*ProxyObject)
	if !ok {
		return nil, unserializableError("CONSTRUCT result was not a reference")
	}
	return sub, nil
}

// Endpoint performs an ENDPOINT request, returning this proxy's root
// value wrapped for use as a standalone endpoint peer over a dedicated
// sub-channel.
func (p *ProxyObject) Endpoint(ctx context.Context) (*ProxyObject, error) {
	if p.released.Load() {
		return nil, errReleased
	}
	msg := &Message{Type: OpEndpoint, Path: p.path}
	reply, err := p.corr.call(ctx, msg, p.legacy(), nil)
	if err != nil {
		return nil, err
	}
	v, err := p.decodeReply(reply)
	if err != nil {
		return nil, err
	}
	sub, ok := v.(*ProxyObject)
	if !ok {
		return nil, unserializableError("ENDPOINT result was not a reference")
	}
	return sub, nil
}

// Release sends RELEASE for this proxy's path and tears the endpoint down:
// every handle sharing this endpoint's navigation tree is rejected from
// now on, and a port-like endpoint is closed.
// Dropping handles without calling Release also works -- each collected
// handle decrements the endpoint refcount, and the last one triggers the
// same teardown (see setReleaseFinalizer).
func (p *ProxyObject) Release() error {
	if p.released.Swap(true) {
		return errReleased
	}
	runtime.SetFinalizer(p, nil)
	msg := &Message{Type: OpRelease, Path: p.path}
	err := p.corr.post(msg, p.legacy(), nil)
	if _, portLike := forgetEndpoint(p.ep); portLike {
		_ = closeEndpoint(p.ep, true)
	}
	return err
}

func (p *ProxyObject) encodeArgs(args []interface{}) ([]WireValue, []Transferable, error) {
	if len(args) == 0 {
		return nil, nil, nil
	}
	out := make([]WireValue, len(args))
	var transferables []Transferable
	for i, a := range args {
		wv, ts, err := toWire(a, p.ep, p.registry)
		if err != nil {
			return nil, nil, err
		}
		out[i] = wv
		transferables = append(transferables, ts...)
	}
	return out, transferables, nil
}

func (p *ProxyObject) decodeReply(reply *Message) (interface{}, error) {
	if reply.Value == nil {
		return nil, nil
	}
	v, err := fromWire(*reply.Value, p.ep, p.registry, p.legacy())
	if err != nil {
		return nil, err
	}
	if re, ok := v.(*RemoteError); ok {
		return nil, re
	}
	return v, nil
}
