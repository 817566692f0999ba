package comlink

import (
	"reflect"
	"sync"
)

// transferAnnotations is the one-shot side-table backing Transfer: it
// associates a value with the list of Transferables that should move
// (rather than copy) when that value next crosses an Endpoint. Entries
// are consumed exactly once.
var transferAnnotations sync.Map // map[any][]Transferable

// Transfer annotates v with transferables to move alongside it the next
// time it is encoded onto the wire, and returns v unchanged so call sites
// can use it inline as an argument or return value.
func Transfer(v interface{}, transferables ...Transferable) interface{} {
	if v == nil || len(transferables) == 0 {
		return v
	}
	transferAnnotations.Store(v, transferables)
	return v
}

// takeTransferables looks up and clears any annotation recorded for v.
// Values of non-comparable types (maps, slices, funcs) cannot be table
// keys and never carry an annotation.
func takeTransferables(v interface{}) []Transferable {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return nil
	}
	raw, ok := transferAnnotations.LoadAndDelete(v)
	if !ok {
		return nil
	}
	return raw.([]Transferable)
}
