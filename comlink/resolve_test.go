package comlink

import "testing"

type resolveLeaf struct {
	N int
}

type resolveRoot struct {
	Name     string
	Sub      resolveLeaf
	Children []resolveLeaf
	Tags     map[string]string
	calls    int
}

func (r *resolveRoot) Inc(delta int) int {
	r.calls += delta
	return r.calls
}

func (r *resolveRoot) Fail() error {
	return errReleased
}

func TestStepNavigatesFieldsMapsAndSlices(t *testing.T) {
	root := &resolveRoot{
		Name:     "root",
		Sub:      resolveLeaf{N: 7},
		Children: []resolveLeaf{{N: 1}, {N: 2}},
		Tags:     map[string]string{"k": "v"},
	}

	if v, err := getPath(root, []string{"Name"}); err != nil || v != "root" {
		t.Errorf("getPath(Name) = %v, %v, want \"root\", nil", v, err)
	}
	if v, err := getPath(root, []string{"Sub", "N"}); err != nil || v != 7 {
		t.Errorf("getPath(Sub.N) = %v, %v, want 7, nil", v, err)
	}
	if v, err := getPath(root, []string{"Children", "1", "N"}); err != nil || v != 2 {
		t.Errorf("getPath(Children.1.N) = %v, %v, want 2, nil", v, err)
	}
	if v, err := getPath(root, []string{"Tags", "k"}); err != nil || v != "v" {
		t.Errorf("getPath(Tags.k) = %v, %v, want \"v\", nil", v, err)
	}
	if _, err := getPath(root, []string{"Nope"}); err == nil {
		t.Errorf("getPath(Nope) succeeded, want error for unknown field")
	}
	if _, err := getPath(root, []string{"Children", "9"}); err == nil {
		t.Errorf("getPath(Children.9) succeeded, want out-of-range error")
	}
}

func TestSetPathAssignsFieldsAndMapEntries(t *testing.T) {
	root := &resolveRoot{Tags: map[string]string{}}
	if err := setPath(root, []string{"Name"}, "renamed"); err != nil {
		t.Fatalf("setPath(Name): %v", err)
	}
	if root.Name != "renamed" {
		t.Errorf("root.Name = %q, want %q", root.Name, "renamed")
	}
	if err := setPath(root, []string{"Sub", "N"}, 42); err != nil {
		t.Fatalf("setPath(Sub.N): %v", err)
	}
	if root.Sub.N != 42 {
		t.Errorf("root.Sub.N = %d, want 42", root.Sub.N)
	}
	if err := setPath(root, []string{}, 1); err == nil {
		t.Errorf("setPath on empty path succeeded, want error (cannot SET root)")
	}
}

// TestApplyPathDispatchesMethods exercises the resolveParent/methodOn fix:
// a path whose final segment names a method, not a struct field, must
// still resolve and call it.
func TestApplyPathDispatchesMethods(t *testing.T) {
	root := &resolveRoot{}
	v, err := applyPath(root, []string{"Inc"}, []interface{}{float64(3)})
	if err != nil {
		t.Fatalf("applyPath(Inc, 3): %v", err)
	}
	if v != 3 {
		t.Errorf("applyPath(Inc, 3) = %v, want 3", v)
	}
	v, err = applyPath(root, []string{"Inc"}, []interface{}{float64(4)})
	if err != nil {
		t.Fatalf("applyPath(Inc, 4): %v", err)
	}
	if v != 7 {
		t.Errorf("applyPath(Inc, 4) = %v, want 7 (calls should accumulate)", v)
	}

	if _, err := applyPath(root, []string{"Fail"}, nil); err != errReleased {
		t.Errorf("applyPath(Fail) error = %v, want errReleased", err)
	}

	if _, err := applyPath(root, []string{"Name"}, nil); err == nil {
		t.Errorf("applyPath(Name) succeeded, want error: a plain string field is not callable")
	}
}

func TestConstructPathMarksResultForProxy(t *testing.T) {
	factory := func(n int) *resolveLeaf { return &resolveLeaf{N: n} }
	v, err := constructPath(factory, nil, []interface{}{float64(5)})
	if err != nil {
		t.Fatalf("constructPath(factory, 5): %v", err)
	}
	leaf, ok := v.(*resolveLeaf)
	if !ok {
		t.Fatalf("constructPath result type = %T, want *resolveLeaf", v)
	}
	if leaf.N != 5 {
		t.Errorf("constructed leaf.N = %d, want 5", leaf.N)
	}
	if !isProxyMarked(leaf) {
		t.Errorf("constructPath result was not proxy-marked; CONSTRUCT must always return by reference")
	}
}

type constructingRoot struct{}

func (constructingRoot) Construct(args []interface{}) (interface{}, error) {
	n, _ := args[0].(float64)
	return &resolveLeaf{N: int(n) * 2}, nil
}

func TestConstructPathPrefersConstructorInterface(t *testing.T) {
	v, err := constructPath(constructingRoot{}, nil, []interface{}{float64(10)})
	if err != nil {
		t.Fatalf("constructPath(constructingRoot{}, 10): %v", err)
	}
	leaf := v.(*resolveLeaf)
	if leaf.N != 20 {
		t.Errorf("leaf.N = %d, want 20 (Constructor.Construct should run instead of reflect callFunc)", leaf.N)
	}
}
