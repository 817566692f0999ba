package comlink

import "sync"

// endpointLifetime tracks how many live proxies reference one endpoint, so
// the last handle to go away can tear it down instead of leaking a
// sub-channel forever.
type endpointLifetime struct {
	mu       sync.Mutex
	count    int
	portLike bool
}

var lifetimes sync.Map // map[Endpoint]*endpointLifetime

// registerProxy records that one more live Proxy references ep. portLike
// is consulted only on the first registration for an endpoint.
func registerProxy(ep Endpoint, portLike bool) {
	v, _ := lifetimes.LoadOrStore(ep, &endpointLifetime{portLike: portLike})
	lt := v.(*endpointLifetime)
	lt.mu.Lock()
	lt.count++
	lt.mu.Unlock()
}

// dropProxyRef drops one reference to ep, reporting whether it was the
// last and whether ep was registered port-like. The caller issues RELEASE
// and closes the endpoint when last is true; the entry is removed here so
// the count reaches zero at most once per endpoint.
func dropProxyRef(ep Endpoint) (last bool, portLike bool) {
	v, ok := lifetimes.Load(ep)
	if !ok {
		return false, false
	}
	lt := v.(*endpointLifetime)
	lt.mu.Lock()
	lt.count--
	last = lt.count <= 0
	portLike = lt.portLike
	lt.mu.Unlock()
	if last {
		lifetimes.Delete(ep)
	}
	return last, portLike
}

// forgetEndpoint removes ep's lifetime entry unconditionally -- an
// explicit Release on any handle tears down the whole endpoint, whatever
// the remaining count -- and reports whether ep was registered port-like.
func forgetEndpoint(ep Endpoint) (existed bool, portLike bool) {
	v, ok := lifetimes.LoadAndDelete(ep)
	if !ok {
		return false, false
	}
	return true, v.(*endpointLifetime).portLike
}
