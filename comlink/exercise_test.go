package comlink_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sammck-go/comlink/comlink"
	"github.com/sammck-go/comlink/comlink/transport"
)

// exerciseRoot is exposed by most tests in this file: a field for GET/SET,
// a plain method for APPLY, a throwing method for the built-in "throw"
// handler, and a factory method for CONSTRUCT.
type exerciseRoot struct {
	mu    sync.Mutex
	Label string
	n     int
}

func (r *exerciseRoot) Inc() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return r.n
}

func (r *exerciseRoot) Boom() error {
	return &customError{"exerciseRoot.Boom always fails"}
}

func (r *exerciseRoot) Panics() {
	panic("kaboom")
}

func (r *exerciseRoot) NewCounter(start int) *exerciseCounter {
	return &exerciseCounter{n: start}
}

func (r *exerciseRoot) RunCallback(fn *comlink.ProxyObject, arg int) (interface{}, error) {
	return fn.Call(context.Background(), arg)
}

type customError struct{ msg string }

func (e *customError) Error() string { return e.msg }

type exerciseCounter struct {
	mu        sync.Mutex
	n         int
	released  bool
	finalizes int
}

func (c *exerciseCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *exerciseCounter) ComlinkFinalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizes++
	c.released = true
}

// callbackFunc adapts a Go closure to comlink.Caller, since bare func
// values cannot be keys in the proxy-mark side-table.
type callbackFunc struct {
	fn func(args []interface{}) (interface{}, error)
}

func (c *callbackFunc) Call(args []interface{}) (interface{}, error) {
	return c.fn(args)
}

func newExercisePair(t *testing.T, root *exerciseRoot) *comlink.ProxyObject {
	t.Helper()
	clientEp, serverEp := transport.NewInProcessPair()
	comlink.Expose(root, serverEp)
	proxy := comlink.Wrap(clientEp)
	t.Cleanup(func() { _ = proxy.Release() })
	return proxy
}

func TestProxyGetReadsAnExposedField(t *testing.T) {
	root := &exerciseRoot{Label: "hello"}
	proxy := newExercisePair(t, root)

	v, err := proxy.Path("Label").Get(context.Background())
	if err != nil {
		t.Fatalf("Get(Label): %v", err)
	}
	if v != "hello" {
		t.Errorf("Get(Label) = %v, want %q", v, "hello")
	}
}

func TestProxySetWritesBackThroughTheExposedValue(t *testing.T) {
	root := &exerciseRoot{Label: "before"}
	proxy := newExercisePair(t, root)

	if err := proxy.Path("Label").Set(context.Background(), "after"); err != nil {
		t.Fatalf("Set(Label, after): %v", err)
	}
	root.mu.Lock()
	got := root.Label
	root.mu.Unlock()
	if got != "after" {
		t.Errorf("root.Label = %q after remote Set, want %q", got, "after")
	}
}

// TestProxyCallDispatchesAMethodByPath locks in the resolveParent/methodOn
// fix: a path whose last segment names a method must resolve and execute,
// not just fields/map-entries/slice-indices.
func TestProxyCallDispatchesAMethodByPath(t *testing.T) {
	root := &exerciseRoot{}
	proxy := newExercisePair(t, root)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := proxy.Path("Inc").Call(ctx)
		if err != nil {
			t.Fatalf("Call(Inc) #%d: %v", want, err)
		}
		if got != float64(want) {
			t.Errorf("Call(Inc) #%d = %v, want %d", want, got, want)
		}
	}
}

func TestProxyCallPropagatesARemoteThrowAsAnError(t *testing.T) {
	root := &exerciseRoot{}
	proxy := newExercisePair(t, root)

	_, err := proxy.Path("Boom").Call(context.Background())
	if err == nil {
		t.Fatalf("Call(Boom) succeeded, want a rejected call carrying the remote error")
	}
	if err.Error() != "exerciseRoot.Boom always fails" {
		t.Errorf("Call(Boom) error = %q, want the original message to survive the round trip", err.Error())
	}
	var re *comlink.RemoteError
	if !errors.As(err, &re) {
		t.Errorf("Call(Boom) error type = %T, want *comlink.RemoteError", err)
	} else if re.Name() == "" {
		t.Errorf("Call(Boom) remote error carries no name, want the thrown type to survive the round trip")
	}
}

// TestConstructReturnsALiveReferenceNotACopy exercises CONSTRUCT, the
// resulting proxy's independent method calls, RELEASE, and a synchronous
// (no round-trip) rejection of any call made after Release. The finalizer
// hook is checked by TestReleaseInvokesComlinkFinalizeExactlyOnce.
func TestConstructReturnsALiveReferenceNotACopy(t *testing.T) {
	root := &exerciseRoot{}
	proxy := newExercisePair(t, root)
	ctx := context.Background()

	counter, err := proxy.Path("NewCounter").Construct(ctx, 10)
	if err != nil {
		t.Fatalf("Construct(NewCounter, 10): %v", err)
	}

	for want := 11; want <= 12; want++ {
		got, err := counter.Path("Next").Call(ctx)
		if err != nil {
			t.Fatalf("counter.Call(Next): %v", err)
		}
		if got != float64(want) {
			t.Errorf("counter.Call(Next) = %v, want %d", got, want)
		}
	}

	if err := counter.Release(); err != nil {
		t.Fatalf("counter.Release(): %v", err)
	}
	if _, err := counter.Path("Next").Call(ctx); err == nil {
		t.Errorf("counter.Call(Next) after Release succeeded, want a synchronous rejection")
	}
}

// TestReleaseInvokesComlinkFinalizeExactlyOnce exposes the exerciseCounter
// directly (rather than through a CONSTRUCT factory) so the test can read
// its finalizes counter after Release.
func TestReleaseInvokesComlinkFinalizeExactlyOnce(t *testing.T) {
	counter := &exerciseCounter{n: 5}
	clientEp, serverEp := transport.NewInProcessPair()
	comlink.Expose(counter, serverEp)
	proxy := comlink.Wrap(clientEp)

	if _, err := proxy.Path("Next").Call(context.Background()); err != nil {
		t.Fatalf("Call(Next): %v", err)
	}
	if err := proxy.Release(); err != nil {
		t.Fatalf("Release(): %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		counter.mu.Lock()
		finalizes := counter.finalizes
		counter.mu.Unlock()
		if finalizes == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ComlinkFinalize was not invoked within 1s of Release")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := proxy.Path("Next").Call(context.Background()); err == nil {
		t.Errorf("Call(Next) after Release succeeded, want rejection")
	}
	counter.mu.Lock()
	finalizes := counter.finalizes
	counter.mu.Unlock()
	if finalizes != 1 {
		t.Errorf("ComlinkFinalize invoked %d times, want exactly 1", finalizes)
	}
}

func TestProxyMarkedCallbackArgumentIsCallableFromTheRemoteSide(t *testing.T) {
	root := &exerciseRoot{}
	proxy := newExercisePair(t, root)
	ctx := context.Background()

	var called int32
	cb := &callbackFunc{fn: func(args []interface{}) (interface{}, error) {
		called++
		n, _ := args[0].(float64)
		return n * 2, nil
	}}

	result, err := proxy.Path("RunCallback").Call(ctx, comlink.Proxy(cb), 21)
	if err != nil {
		t.Fatalf("Call(RunCallback): %v", err)
	}
	if result != float64(42) {
		t.Errorf("Call(RunCallback) = %v, want 42", result)
	}
	if called != 1 {
		t.Errorf("callback invoked %d times, want exactly 1", called)
	}
}

// TestPanicInExposedMethodRejectsTheCall locks in the dispatch-path
// recover: a panic inside an exposed method must come back to the caller
// as a rejection, not take down the exposer's goroutine.
func TestPanicInExposedMethodRejectsTheCall(t *testing.T) {
	root := &exerciseRoot{}
	proxy := newExercisePair(t, root)

	_, err := proxy.Path("Panics").Call(context.Background())
	if err == nil {
		t.Fatalf("Call(Panics) succeeded, want a rejection carrying the recovered panic")
	}
	var re *comlink.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("Call(Panics) error type = %T, want *comlink.RemoteError", err)
	}
	if re.Name() != "panic" || re.Stack() == "" {
		t.Errorf("remote error = (name %q, %d stack bytes), want name \"panic\" with a captured stack", re.Name(), len(re.Stack()))
	}

	// The exposer must still be alive for subsequent calls.
	if got, err := proxy.Path("Inc").Call(context.Background()); err != nil || got != float64(1) {
		t.Errorf("Call(Inc) after a recovered panic = (%v, %v), want (1, nil)", got, err)
	}
}

func TestConcurrentCallsResolveIndependently(t *testing.T) {
	root := &exerciseRoot{}
	proxy := newExercisePair(t, root)
	ctx := context.Background()

	const n = 20
	results := make([]float64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := proxy.Path("Inc").Call(ctx)
			if err == nil {
				results[i], _ = v.(float64)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	seen := make(map[float64]bool, n)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Call(Inc) #%d: %v", i, err)
		}
		if seen[results[i]] {
			t.Errorf("Inc() result %v returned to more than one caller, want every concurrent call to get a distinct increment", results[i])
		}
		seen[results[i]] = true
	}
	if len(seen) != n {
		t.Errorf("saw %d distinct Inc() results, want %d", len(seen), n)
	}
}

// TestConstructedProxyUsesItsOwnSubChannelNotTheParentsEndpoint locks in the
// submux.go fix: a CONSTRUCT result must dispatch against the new
// instance over its own multiplexed sub-channel, not silently fall back
// to the parent proxy's endpoint (which would route the call to the
// parent's own exposer and resolve the wrong object, or fail path
// resolution against it).
func TestConstructedProxyUsesItsOwnSubChannelNotTheParentsEndpoint(t *testing.T) {
	root := &exerciseRoot{Label: "root-only"}
	proxy := newExercisePair(t, root)
	ctx := context.Background()

	counter, err := proxy.Path("NewCounter").Construct(ctx, 100)
	if err != nil {
		t.Fatalf("Construct(NewCounter, 100): %v", err)
	}

	got, err := counter.Path("Next").Call(ctx)
	if err != nil {
		t.Fatalf("counter.Call(Next): %v, want dispatch against the constructed instance over its own sub-channel", err)
	}
	if got != float64(101) {
		t.Errorf("counter.Call(Next) = %v, want 101 (proof the call reached the new Counter, not exerciseRoot)", got)
	}

	// The root proxy must still work independently: releasing or calling
	// on the sub-channel proxy must not have touched the parent endpoint.
	if v, err := proxy.Path("Label").Get(ctx); err != nil || v != "root-only" {
		t.Errorf("proxy.Get(Label) = (%v, %v), want (\"root-only\", nil) -- parent endpoint must be unaffected by the child sub-channel", v, err)
	}
}

func TestLegacyEncodingRoundTrips(t *testing.T) {
	clientEp, serverEp := transport.NewInProcessPair()
	root := &exerciseRoot{Label: "legacy"}
	comlink.Expose(root, serverEp)
	proxy := comlink.Wrap(clientEp, comlink.WithLegacyEncoding(true))
	defer proxy.Release()

	v, err := proxy.Path("Label").Get(context.Background())
	if err != nil {
		t.Fatalf("Get(Label) over legacy encoding: %v", err)
	}
	if v != "legacy" {
		t.Errorf("Get(Label) over legacy encoding = %v, want %q", v, "legacy")
	}
}

func TestCallOnAReleasedProxyRejectsWithoutBlocking(t *testing.T) {
	root := &exerciseRoot{}
	clientEp, serverEp := transport.NewInProcessPair()
	comlink.Expose(root, serverEp)
	proxy := comlink.Wrap(clientEp)

	if err := proxy.Release(); err != nil {
		t.Fatalf("Release(): %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := proxy.Path("Inc").Call(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("Call() on a released proxy succeeded, want a rejection")
		}
	case <-time.After(time.Second):
		t.Fatalf("Call() on a released proxy blocked instead of rejecting synchronously")
	}
}
