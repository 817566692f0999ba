package comlink

import (
	"reflect"
	"sync"
)

// Finalizer is implemented by an exposed object that wants to run cleanup
// exactly once, after its endpoint receives RELEASE.
type Finalizer interface {
	ComlinkFinalize()
}

// proxyMarks records which values have been stamped for by-reference
// transfer. Go values carry no intrinsic tags, so marking is recorded in
// a table keyed by the value itself, exactly like the transfer-annotation
// side-table in transfer.go. Only comparable values (pointers, for the
// common case of *T instances) can be marked.
var proxyMarks sync.Map // map[any]struct{}

// Proxy stamps v so that, when the wire codec encodes it, the proxy
// transfer handler routes it through a fresh sub-channel instead of
// structured-cloning it in place. It returns v unchanged so call sites
// can wrap an argument or return value inline.
func Proxy(v interface{}) interface{} {
	proxyMarks.Store(v, struct{}{})
	return v
}

// isProxyMarked reports whether v was previously passed to Proxy, or is an
// instance freshly produced by a CONSTRUCT dispatch (which always marks
// its result).
func isProxyMarked(v interface{}) bool {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}
	_, ok := proxyMarks.Load(v)
	return ok
}

// unmarkProxy removes the mark once sub-channel exposure completes, so the
// table does not grow without bound across long proxy lifetimes.
func unmarkProxy(v interface{}) {
	proxyMarks.Delete(v)
}
