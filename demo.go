package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/sammck-go/comlink/comlink"
	"github.com/sammck-go/comlink/comlink/transport"
)

// DemoRoot is the object exposed by both "comlinkd demo" and "comlinkd
// serve": a small counter with a throwing method, a factory that returns a
// fresh proxy-marked sub-object, and a method that calls back into a
// proxy-marked function argument.
type DemoRoot struct {
	logger comlink.Logger

	mu      sync.Mutex
	Counter int
}

func newDemoRoot(logger comlink.Logger) *DemoRoot {
	if logger == nil {
		logger = comlink.NewLogger("demo", comlink.LogLevelInfo)
	}
	return &DemoRoot{logger: logger}
}

// Inc increments and returns the counter.
func (d *DemoRoot) Inc() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Counter++
	return d.Counter
}

// Throws always fails, demonstrating the built-in throw transfer handler
// turning a Go error into a rejected call on the caller's side.
func (d *DemoRoot) Throws() error {
	return fmt.Errorf("comlink/demo: Throws always fails")
}

// Counters is a CONSTRUCT factory: comlink always returns CONSTRUCT results
// by reference, so the caller receives a live handle to a fresh Counter
// rather than a value copy.
func (d *DemoRoot) Counters(start int) *Counter {
	return &Counter{n: start, logger: d.logger.Fork("Counter")}
}

// RunCallback demonstrates a proxy-marked function argument: fn arrives
// already resolved to a *comlink.ProxyObject by the "proxy" transfer
// handler when the exposer decodes the arguments, and calling it dispatches an APPLY back across the same channel to
// whichever side originally held the real function. Exposed
// methods are invoked with only their wire arguments (no ctx injection),
// so the call context is created here instead of threaded in.
func (d *DemoRoot) RunCallback(fn *comlink.ProxyObject) (interface{}, error) {
	return fn.Call(context.Background(), 21)
}

// callback adapts a plain Go closure to comlink.Caller so it can be
// exposed as a function-shaped value. A bare func can't be the key of the
// proxy-mark side-table (func values aren't comparable), so callers wrap
// one in a *callback before passing it to comlink.Proxy.
type callback struct {
	fn func(args []interface{}) (interface{}, error)
}

func (c *callback) Call(args []interface{}) (interface{}, error) {
	return c.fn(args)
}

// Counter is returned by reference from DemoRoot.Counters and implements
// comlink.Finalizer so RELEASE can be observed tearing it down exactly
// once.
type Counter struct {
	logger comlink.Logger

	mu        sync.Mutex
	n         int
	finalized bool
}

func (c *Counter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// ComlinkFinalize implements comlink.Finalizer: invoked once, after the
// RELEASE reply has been posted, when the last reference to this Counter
// is released.
func (c *Counter) ComlinkFinalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized = true
	c.logger.ILogf("finalized at n=%d", c.n)
}

func runDemo() {
	logger := comlink.NewLogger("demo", comlink.LogLevelInfo)

	clientEp, serverEp := transport.NewInProcessPair()
	comlink.Expose(newDemoRoot(logger), serverEp)
	root := comlink.Wrap(clientEp)
	defer root.Release()

	ctx := context.Background()

	// Scenario 1: GET, then APPLY.
	v, err := root.Path("Counter").Get(ctx)
	if err != nil {
		logger.Fatalf("GET Counter: %s", err)
	}
	logger.ILogf("Counter = %v", v)

	for i := 0; i < 3; i++ {
		r, err := root.Path("Inc").Call(ctx)
		if err != nil {
			logger.Fatalf("Inc(): %s", err)
		}
		logger.ILogf("Inc() = %v", r)
	}

	// Scenario 2: a thrown error rejects the call with a remote error.
	if _, err := root.Path("Throws").Call(ctx); err != nil {
		logger.ILogf("Throws() rejected as expected: %s", err)
	} else {
		logger.Fatalf("Throws() unexpectedly succeeded")
	}

	// Scenario 3: CONSTRUCT returns a live proxy, not a value copy.
	counter, err := root.Path("Counters").Construct(ctx, 10)
	if err != nil {
		logger.Fatalf("Counters(10): %s", err)
	}
	for i := 0; i < 2; i++ {
		r, err := counter.Path("Next").Call(ctx)
		if err != nil {
			logger.Fatalf("counter.Next(): %s", err)
		}
		logger.ILogf("counter.Next() = %v", r)
	}

	// Scenario 4: a proxy-marked function argument. comlink.Proxy stamps
	// the callback so the codec spins up a fresh sub-channel for it
	// (handlers.go's proxyTransferHandler) instead of trying to
	// structured-clone a function value; the remote side calls back
	// through that sub-channel.
	double := &callback{fn: func(args []interface{}) (interface{}, error) {
		n, _ := args[0].(float64)
		return n * 2, nil
	}}

	r, err := root.Path("RunCallback").Call(ctx, comlink.Proxy(double))
	if err != nil {
		logger.Fatalf("RunCallback(): %s", err)
	}
	logger.ILogf("RunCallback() = %v", r)

	// Scenario 5/6: RELEASE tears down the remote Counter exactly once,
	// after the reply is posted; a second call on the released proxy
	// throws synchronously without a round trip.
	if err := counter.Release(); err != nil {
		logger.Fatalf("counter.Release(): %s", err)
	}
	if _, err := counter.Path("Next").Call(ctx); err == nil {
		logger.Fatalf("counter.Next() after Release unexpectedly succeeded")
	} else {
		logger.ILogf("counter.Next() after Release rejected as expected: %s", err)
	}
}
