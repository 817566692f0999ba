package comlink

import (
	"encoding/json"
	"testing"
)

// nullEndpoint is a do-nothing Endpoint for codec tests that never need a
// live peer.
type nullEndpoint struct{}

func (*nullEndpoint) Post(data []byte, _ []Transferable) error { return nil }
func (*nullEndpoint) Listen(h MessageHandler)                  {}
func (*nullEndpoint) Unlisten(h MessageHandler)                {}

func TestToWireFallsBackToRawForPlainValues(t *testing.T) {
	ep := &nullEndpoint{}
	wv, transferables, err := toWire(map[string]interface{}{"a": 1.5, "b": "x"}, ep, nil)
	if err != nil {
		t.Fatalf("toWire: %v", err)
	}
	if wv.Tag != TagRaw {
		t.Errorf("toWire tag = %q, want RAW for a plain clone-safe value", wv.Tag)
	}
	if len(transferables) != 0 {
		t.Errorf("toWire produced %d transferables for an unannotated value, want 0", len(transferables))
	}

	v, err := fromWire(wv, ep, nil, false)
	if err != nil {
		t.Fatalf("fromWire: %v", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("fromWire type = %T, want map[string]interface{}", v)
	}
	if m["a"] != 1.5 || m["b"] != "x" {
		t.Errorf("fromWire = %v, want the original entries back", m)
	}
}

func TestToWireRoutesErrorsThroughTheThrowHandler(t *testing.T) {
	ep := &nullEndpoint{}
	wv, _, err := toWire(&RemoteError{message: "it broke"}, ep, nil)
	if err != nil {
		t.Fatalf("toWire(error): %v", err)
	}
	if wv.Tag != TagHandler || wv.Name != "throw" {
		t.Errorf("toWire(error) = (%q, %q), want the built-in throw handler to claim it", wv.Tag, wv.Name)
	}

	v, err := fromWire(wv, ep, nil, false)
	if err != nil {
		t.Fatalf("fromWire: %v", err)
	}
	re, ok := v.(*RemoteError)
	if !ok {
		t.Fatalf("fromWire type = %T, want *RemoteError", v)
	}
	if re.Error() != "it broke" {
		t.Errorf("remote error message = %q, want %q", re.Error(), "it broke")
	}
}

func TestFromWireRejectsUnknownHandlerNames(t *testing.T) {
	wv := WireValue{Tag: TagHandler, Name: "no-such-handler", Payload: []byte("null")}
	if _, err := fromWire(wv, &nullEndpoint{}, nil, false); err == nil {
		t.Errorf("fromWire accepted an unregistered handler name, want an error")
	}
}

func TestTransferAnnotationIsConsumedExactlyOnce(t *testing.T) {
	ep := &nullEndpoint{}
	v := &struct{ N int }{N: 1}
	Transfer(v, "handle-a", "handle-b")

	_, transferables, err := toWire(v, ep, nil)
	if err != nil {
		t.Fatalf("toWire: %v", err)
	}
	if len(transferables) != 2 {
		t.Fatalf("first encode saw %d transferables, want 2", len(transferables))
	}

	_, transferables, err = toWire(v, ep, nil)
	if err != nil {
		t.Fatalf("toWire (second): %v", err)
	}
	if len(transferables) != 0 {
		t.Errorf("second encode saw %d transferables, want 0: annotations are one-shot", len(transferables))
	}
}

type claimAllHandler struct{ result string }

func (h claimAllHandler) CanHandle(v interface{}) bool { return true }
func (h claimAllHandler) Serialize(v interface{}, ep Endpoint) (json.RawMessage, []Transferable, error) {
	return json.RawMessage(`null`), nil, nil
}
func (h claimAllHandler) Deserialize(p json.RawMessage, ep Endpoint, legacy bool) (interface{}, error) {
	return h.result, nil
}

func TestHandlerRegistryScansInRegistrationOrder(t *testing.T) {
	r := newHandlerRegistry()
	r.Register("first", claimAllHandler{result: "first"})
	r.Register("second", claimAllHandler{result: "second"})

	name, _, ok := r.find("anything")
	if !ok || name != "first" {
		t.Errorf("find = (%q, %v), want the first-registered handler to win", name, ok)
	}

	// Re-registering an existing name must replace in place, not move it
	// to the back of the scan order.
	r.Register("first", claimAllHandler{result: "first-replaced"})
	name, h, _ := r.find("anything")
	if name != "first" {
		t.Errorf("find after re-register = %q, want \"first\" to keep its position", name)
	}
	v, _ := h.Deserialize(nil, &nullEndpoint{}, false)
	if v != "first-replaced" {
		t.Errorf("re-registered handler result = %v, want the replacement to be in effect", v)
	}
}

func TestOperationLegacyEncodingRoundTrips(t *testing.T) {
	for op, code := range legacyOperationCodes {
		raw, err := encodeOperation(op, true)
		if err != nil {
			t.Fatalf("encodeOperation(%s, legacy): %v", op, err)
		}
		var got int
		if err := json.Unmarshal(raw, &got); err != nil || got != code {
			t.Errorf("legacy encoding of %s = %s, want numeric %d", op, raw, code)
		}
		back, legacy, err := decodeOperation(raw)
		if err != nil {
			t.Fatalf("decodeOperation(%s): %v", raw, err)
		}
		if back != op || !legacy {
			t.Errorf("decodeOperation(%s) = (%s, %v), want (%s, true)", raw, back, legacy, op)
		}
	}
}

func TestDecodeMessageReportsLegacyPerCall(t *testing.T) {
	msg := &Message{ID: "abc", Type: OpGet, Path: []string{"X"}}

	data, err := encodeMessage(msg, true)
	if err != nil {
		t.Fatalf("encodeMessage(legacy): %v", err)
	}
	back, legacy, err := decodeMessage(data)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if !legacy {
		t.Errorf("decodeMessage(legacy-encoded) reported legacy=false; the reply for this call would use the wrong encoding")
	}
	if back.ID != "abc" || back.Type != OpGet || len(back.Path) != 1 || back.Path[0] != "X" {
		t.Errorf("decodeMessage = %+v, want the original id/type/path", back)
	}

	data, err = encodeMessage(msg, false)
	if err != nil {
		t.Fatalf("encodeMessage(current): %v", err)
	}
	if _, legacy, _ := decodeMessage(data); legacy {
		t.Errorf("decodeMessage(current-encoded) reported legacy=true")
	}
}

func TestWireValueLegacyTagRoundTrips(t *testing.T) {
	wv := WireValue{Tag: TagHandler, Name: "proxy", Payload: []byte(`{"sub":"s1"}`)}
	raw, err := marshalWireValue(wv, true)
	if err != nil {
		t.Fatalf("marshalWireValue(legacy): %v", err)
	}
	back, legacy, err := unmarshalWireValue(raw)
	if err != nil {
		t.Fatalf("unmarshalWireValue: %v", err)
	}
	if !legacy {
		t.Errorf("legacy wire tag decoded with legacy=false")
	}
	if back.Tag != TagHandler || back.Name != "proxy" || string(back.Payload) != `{"sub":"s1"}` {
		t.Errorf("unmarshalWireValue = %+v, want the original tag/name/payload", back)
	}
}
