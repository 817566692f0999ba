package comlink

import (
	"fmt"
	"reflect"
	"strconv"
)

// Constructor lets an exposed value opt into a custom CONSTRUCT
// implementation instead of the generic reflect-based one below, which
// calls the resolved target as a function and returns its result.
type Constructor interface {
	Construct(args []interface{}) (interface{}, error)
}

// Caller lets an exposed value opt into a custom APPLY implementation.
type Caller interface {
	Call(args []interface{}) (interface{}, error)
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}

// step navigates a single path segment off v: struct fields by exported
// name, map entries by key, and slice/array entries by integer index.
func step(v reflect.Value, segment string) (reflect.Value, error) {
	dv := indirect(v)
	if !dv.IsValid() {
		return reflect.Value{}, fmt.Errorf("comlink: cannot navigate %q on a nil value", segment)
	}
	switch dv.Kind() {
	case reflect.Struct:
		f := dv.FieldByName(segment)
		if !f.IsValid() {
			return reflect.Value{}, fmt.Errorf("comlink: no field %q", segment)
		}
		return f, nil
	case reflect.Map:
		key := reflect.ValueOf(segment)
		if dv.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("comlink: map key type %s unsupported for path navigation", dv.Type().Key())
		}
		mv := dv.MapIndex(key)
		if !mv.IsValid() {
			return reflect.Value{}, fmt.Errorf("comlink: no map entry %q", segment)
		}
		return mv, nil
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= dv.Len() {
			return reflect.Value{}, fmt.Errorf("comlink: index %q out of range", segment)
		}
		return dv.Index(idx), nil
	default:
		return reflect.Value{}, fmt.Errorf("comlink: cannot navigate %q into kind %s", segment, dv.Kind())
	}
}

// resolvePath walks path off root, returning the final reflect.Value and,
// separately, the reflect.Value one level up (needed by SET to find an
// addressable field or map).
func resolvePath(root interface{}, path []string) (parent reflect.Value, leaf reflect.Value, leafName string, err error) {
	v := reflect.ValueOf(root)
	if len(path) == 0 {
		return reflect.Value{}, v, "", nil
	}
	cur := v
	for i, seg := range path {
		next, stepErr := step(cur, seg)
		if stepErr != nil {
			return reflect.Value{}, reflect.Value{}, "", stepErr
		}
		if i == len(path)-1 {
			return cur, next, seg, nil
		}
		cur = next
	}
	return reflect.Value{}, reflect.Value{}, "", fmt.Errorf("comlink: empty path segment")
}

func getPath(root interface{}, path []string) (interface{}, error) {
	_, leaf, _, err := resolvePath(root, path)
	if err != nil {
		return nil, err
	}
	if !leaf.IsValid() {
		return nil, nil
	}
	return leaf.Interface(), nil
}

func setPath(root interface{}, path []string, value interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("comlink: cannot SET the root value")
	}
	parent, _, name, err := resolvePath(root, path)
	if err != nil {
		return err
	}
	dp := indirect(parent)
	switch dp.Kind() {
	case reflect.Struct:
		f := dp.FieldByName(name)
		if !f.IsValid() || !f.CanSet() {
			return fmt.Errorf("comlink: field %q is not settable", name)
		}
		fv := reflect.ValueOf(value)
		if !fv.IsValid() {
			f.Set(reflect.Zero(f.Type()))
			return nil
		}
		if fv.Type().AssignableTo(f.Type()) {
			f.Set(fv)
			return nil
		}
		if fv.Type().ConvertibleTo(f.Type()) {
			f.Set(fv.Convert(f.Type()))
			return nil
		}
		return fmt.Errorf("comlink: cannot assign %s to field %q of type %s", fv.Type(), name, f.Type())
	case reflect.Map:
		if dp.IsNil() {
			return fmt.Errorf("comlink: cannot SET into a nil map")
		}
		dp.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(value))
		return nil
	default:
		return fmt.Errorf("comlink: cannot SET %q on kind %s", name, dp.Kind())
	}
}

// callFunc invokes a reflect.Value known to be a func, converting args
// best-effort and splitting the standard (result, error) return shape.
func callFunc(fn reflect.Value, args []interface{}) (interface{}, error) {
	ft := fn.Type()
	in := make([]reflect.Value, 0, len(args))
	for i, a := range args {
		var want reflect.Type
		switch {
		case ft.IsVariadic() && i >= ft.NumIn()-1:
			want = ft.In(ft.NumIn() - 1).Elem()
		case i < ft.NumIn():
			want = ft.In(i)
		}
		in = append(in, convertArg(a, want))
	}
	out := fn.Call(in)
	return splitResults(out)
}

func convertArg(a interface{}, want reflect.Type) reflect.Value {
	if a == nil {
		if want != nil {
			return reflect.Zero(want)
		}
		return reflect.ValueOf(&a).Elem()
	}
	av := reflect.ValueOf(a)
	if want == nil || av.Type().AssignableTo(want) {
		return av
	}
	if av.Type().ConvertibleTo(want) {
		return av.Convert(want)
	}
	return av
}

func splitResults(out []reflect.Value) (interface{}, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		var tailErr error
		if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			tailErr, _ = last.Interface().(error)
			out = out[:len(out)-1]
		}
		if len(out) == 1 {
			return out[0].Interface(), tailErr
		}
		vals := make([]interface{}, len(out))
		for i, v := range out {
			vals[i] = v.Interface()
		}
		return vals, tailErr
	}
}

// resolveParent walks path off root and returns the reflect.Value it ends
// on, without requiring the final segment to be a struct field, map
// entry, or slice index -- used by applyPath/constructPath, whose final
// segment is often a method name instead.
func resolveParent(root interface{}, path []string) (reflect.Value, error) {
	cur := reflect.ValueOf(root)
	for _, seg := range path {
		next, err := step(cur, seg)
		if err != nil {
			return reflect.Value{}, err
		}
		cur = next
	}
	return cur, nil
}

// methodOn looks up name as a method of v, preferring the pointer method
// set (so value-receiver and pointer-receiver methods are both found) and
// falling back to the value method set when v isn't addressable.
func methodOn(v reflect.Value, name string) reflect.Value {
	dv := indirect(v)
	if !dv.IsValid() {
		return reflect.Value{}
	}
	if dv.CanAddr() {
		if m := dv.Addr().MethodByName(name); m.IsValid() {
			return m
		}
	}
	return dv.MethodByName(name)
}

// applyPath resolves path and invokes it as a function or method, falling
// back to the Caller interface when the leaf itself isn't directly
// callable.
func applyPath(root interface{}, path []string, args []interface{}) (interface{}, error) {
	if len(path) == 0 {
		if c, ok := root.(Caller); ok {
			return c.Call(args)
		}
		return callFunc(reflect.ValueOf(root), args)
	}
	parent, err := resolveParent(root, path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	name := path[len(path)-1]
	if leaf, stepErr := step(parent, name); stepErr == nil {
		if leaf.Kind() == reflect.Func {
			return callFunc(leaf, args)
		}
		if leaf.CanInterface() {
			if c, ok := leaf.Interface().(Caller); ok {
				return c.Call(args)
			}
		}
	}
	if method := methodOn(parent, name); method.IsValid() {
		return callFunc(method, args)
	}
	return nil, fmt.Errorf("comlink: %q is not callable", name)
}

// constructPath resolves path and builds a new instance from it, via the
// Constructor interface if present, else by calling it as a function.
// The result is always marked for proxy transfer: construction returns a
// reference, never a value copy.
func constructPath(root interface{}, path []string, args []interface{}) (interface{}, error) {
	var target interface{}
	if len(path) == 0 {
		target = root
	} else {
		parent, err := resolveParent(root, path[:len(path)-1])
		if err != nil {
			return nil, err
		}
		name := path[len(path)-1]
		if leaf, stepErr := step(parent, name); stepErr == nil && leaf.IsValid() {
			target = leaf.Interface()
		} else if method := methodOn(parent, name); method.IsValid() {
			target = method.Interface()
		} else {
			return nil, fmt.Errorf("comlink: %q is not constructable", name)
		}
	}
	var result interface{}
	var err error
	if c, ok := target.(Constructor); ok {
		result, err = c.Construct(args)
	} else {
		result, err = callFunc(reflect.ValueOf(target), args)
	}
	if err != nil {
		return nil, err
	}
	return Proxy(result), nil
}
