package comlink

import (
	"context"
	"sync"
)

// OnceShutdownHandler is implemented by the object managed by a
// ShutdownHelper. HandleOnceShutdown is called exactly once, in its own
// goroutine, with an advisory completion value; it should actually shut
// down, then return the real completion value.
type OnceShutdownHandler interface {
	HandleOnceShutdown(completionError error) error
}

// AsyncShutdowner is an interface implemented by objects that provide
// asynchronous shutdown capability: endpoint adapters, and anything else
// whose teardown another object may need to schedule and await.
type AsyncShutdowner interface {
	// StartShutdown schedules asynchronous shutdown of the object. If the
	// object has already been scheduled for shutdown, it has no effect.
	// completionErr is an advisory error (or nil) to use as the completion
	// status from WaitShutdown(); the implementation may return something
	// else.
	StartShutdown(completionErr error)

	// ShutdownDoneChan returns a chan that is closed after shutdown is
	// complete. After it is closed, IsDoneShutdown() returns true and
	// WaitShutdown() will not block.
	ShutdownDoneChan() <-chan struct{}

	// IsDoneShutdown returns true once the object is completely shut down.
	IsDoneShutdown() bool

	// WaitShutdown blocks until the object is completely shut down, and
	// returns the final completion status.
	WaitShutdown() error
}

// ShutdownHelper is a base that manages clean asynchronous shutdown for an
// object implementing OnceShutdownHandler. Endpoint adapters embed it so a
// read-loop error, an explicit Close, and a parent's AddShutdownChild all
// funnel into one HandleOnceShutdown invocation.
type ShutdownHelper struct {
	// Logger is the Logger used for log output from this helper
	Logger

	// Lock is a general-purpose fine-grained mutex for this helper; it may
	// be used as a general-purpose lock by derived objects as well
	Lock sync.Mutex

	// The object managed by this helper, called exactly once to perform
	// synchronous shutdown.
	shutdownHandler OnceShutdownHandler

	// isStartedShutdown is set to true when shutdown begins
	isStartedShutdown bool

	// isDoneShutdown is set to true when shutdown is completely done
	isDoneShutdown bool

	// shutdownErr holds the final completion status once isDoneShutdown
	shutdownErr error

	// shutdownStartedChan is closed when shutdown starts
	shutdownStartedChan chan struct{}

	// shutdownHandlerDoneChan is closed after shutdownHandler returns,
	// before children are waited for; it wakes goroutines that actively
	// shut down children.
	shutdownHandlerDoneChan chan struct{}

	// shutdownDoneChan is closed when shutdown is completely done
	shutdownDoneChan chan struct{}

	// wg is waited on before shutdown is considered complete; incremented
	// for each registered child.
	wg sync.WaitGroup
}

// InitShutdownHelper initializes a ShutdownHelper in place, for embedders.
func (h *ShutdownHelper) InitShutdownHelper(
	logger Logger,
	shutdownHandler OnceShutdownHandler,
) {
	h.Logger = logger
	h.shutdownHandler = shutdownHandler
	h.shutdownStartedChan = make(chan struct{})
	h.shutdownHandlerDoneChan = make(chan struct{})
	h.shutdownDoneChan = make(chan struct{})
}

// NewShutdownHelper creates a new ShutdownHelper on the heap
func NewShutdownHelper(
	logger Logger,
	shutdownHandler OnceShutdownHandler,
) *ShutdownHelper {
	h := &ShutdownHelper{}
	h.InitShutdownHelper(logger, shutdownHandler)
	return h
}

// asyncDoStartedShutdown runs the handler and child waits in the
// background, after h.isStartedShutdown has been set and h.shutdownErr
// holds the advisory completion error.
func (h *ShutdownHelper) asyncDoStartedShutdown() {
	h.DLogf("->shutdownStarted")
	close(h.shutdownStartedChan)
	go func() {
		h.shutdownErr = h.shutdownHandler.HandleOnceShutdown(h.shutdownErr)
		h.DLogf("->shutdownHandlerDone")
		close(h.shutdownHandlerDoneChan)
		h.wg.Wait()
		h.isDoneShutdown = true
		h.DLogf("->shutdownDone")
		close(h.shutdownDoneChan)
	}()
}

// ShutdownOnContext constrains the lifetime of this object to ctx:
// background monitoring starts asynchronous shutdown with the context's
// error once the context completes. Does not block.
func (h *ShutdownHelper) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-h.shutdownStartedChan:
		case <-ctx.Done():
			h.StartShutdown(ctx.Err())
		}
	}()
}

// IsStartedShutdown returns true once shutdown has begun. It continues to
// return true after shutdown is complete.
func (h *ShutdownHelper) IsStartedShutdown() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.isStartedShutdown
}

// IsDoneShutdown returns true if shutdown is complete.
func (h *ShutdownHelper) IsDoneShutdown() bool {
	return h.isDoneShutdown
}

// ShutdownStartedChan returns a channel that is closed as soon as shutdown
// is initiated.
func (h *ShutdownHelper) ShutdownStartedChan() <-chan struct{} {
	return h.shutdownStartedChan
}

// ShutdownDoneChan returns a channel that is closed after shutdown is done.
func (h *ShutdownHelper) ShutdownDoneChan() <-chan struct{} {
	return h.shutdownDoneChan
}

// WaitShutdown waits for shutdown to complete, then returns the final
// status. It does not initiate shutdown, so it can be used to wait on an
// object that will shut down at an unspecified point in the future.
func (h *ShutdownHelper) WaitShutdown() error {
	<-h.shutdownDoneChan
	return h.shutdownErr
}

// Shutdown performs a synchronous shutdown: initiates shutdown if it has
// not already started, waits for it to complete, then returns the final
// status.
func (h *ShutdownHelper) Shutdown(completionError error) error {
	h.StartShutdown(completionError)
	return h.WaitShutdown()
}

// StartShutdown schedules asynchronous shutdown of the object. If shutdown
// has already been scheduled, it has no effect. completionErr is an
// advisory completion status (or nil); the handler's return value becomes
// the final status.
//
// Asynchronously, the first call kicks off the following:
//
//  -   Signal that shutdown has started
//  -   Invoke HandleOnceShutdown with the advisory completion status
//  -   Signal that HandleOnceShutdown has completed
//  -   For each registered child, start and await its shutdown
//  -   For each manually added child done chan, wait for it to close
//  -   Signal shutdown complete, with HandleOnceShutdown's return value
//      as the final completion code
func (h *ShutdownHelper) StartShutdown(completionErr error) {
	h.Lock.Lock()
	doShutdownNow := !h.isStartedShutdown
	if doShutdownNow {
		h.shutdownErr = completionErr
		h.isStartedShutdown = true
	}
	h.Lock.Unlock()

	if doShutdownNow {
		h.asyncDoStartedShutdown()
	}
}

// Close is a default implementation of Close(), which simply shuts down
// with an advisory completion status of nil, and returns the final
// completion status
func (h *ShutdownHelper) Close() error {
	h.DLogf("Close()")
	return h.Shutdown(nil)
}

// AddShutdownChildChan adds a chan that will be waited on before this
// object's shutdown is considered complete. The helper takes no action to
// cause the chan to be closed; that is the caller's responsibility.
func (h *ShutdownHelper) AddShutdownChildChan(childDoneChan <-chan struct{}) {
	h.DLogf("AddShutdownChildChan()")
	h.wg.Add(1)
	go func() {
		<-childDoneChan
		h.wg.Done()
	}()
}

// AddShutdownChild adds a child object that will be actively shut down by
// this helper after HandleOnceShutdown() returns, before this object's
// shutdown is considered complete. The child is shut down with an advisory
// completion status equal to the status returned from HandleOnceShutdown.
func (h *ShutdownHelper) AddShutdownChild(child AsyncShutdowner) {
	h.DLogf("AddShutdownChild(\"%s\")", child)
	h.wg.Add(1)
	go func() {
		select {
		case <-child.ShutdownDoneChan():
			h.DLogf("Shutdown of child done, signalling wg: \"%s\"", child)
		case <-h.shutdownHandlerDoneChan:
			h.DLogf("Shutdown handler done, shutting down child \"%s\"", child)
			child.StartShutdown(h.shutdownErr)
			child.WaitShutdown()
			h.DLogf("Shutdown of child done, signalling wg: \"%s\"", child)
		}
		h.wg.Done()
	}()
}
