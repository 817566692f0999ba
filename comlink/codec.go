package comlink

import "encoding/json"

// toWire encodes a Go value for transmission over ep, consulting registry
// in registration order and falling back to RAW (plain JSON) encoding if
// no handler claims the value.
func toWire(v interface{}, ep Endpoint, registry *HandlerRegistry) (WireValue, []Transferable, error) {
	if registry == nil {
		registry = DefaultHandlers
	}
	annotated := takeTransferables(v)
	if name, h, ok := registry.find(v); ok {
		payload, transferables, err := h.Serialize(v, ep)
		if err != nil {
			return WireValue{}, nil, err
		}
		return WireValue{Tag: TagHandler, Name: name, Payload: payload}, append(transferables, annotated...), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return WireValue{}, nil, err
	}
	return WireValue{Tag: TagRaw, Payload: raw}, annotated, nil
}

// fromWire decodes a WireValue received on ep back into a Go value. legacy
// is the encoding mode of the message this value was carried in; a handler
// that materializes its own sub-endpoint (the built-in "proxy" handler)
// uses it to mark that sub-endpoint as legacy too, so proxies over it keep
// speaking the dialect of the message that carried them. HANDLER values
// are deserialized through the named registry entry; unknown handler names
// are an error. RAW values decode into the generic JSON shape
// (map/slice/string/float64/bool/nil).
func fromWire(wv WireValue, ep Endpoint, registry *HandlerRegistry, legacy bool) (interface{}, error) {
	if registry == nil {
		registry = DefaultHandlers
	}
	switch wv.Tag {
	case TagHandler:
		h, ok := registry.byNameLookup(wv.Name)
		if !ok {
			return nil, &unknownHandlerError{name: wv.Name}
		}
		return h.Deserialize(wv.Payload, ep, legacy)
	default:
		return decodeGenericJSON(wv.Payload)
	}
}

// decodeGenericJSON unmarshals a RAW payload into the generic shape
// (map/slice/string/float64/bool/nil). A nil payload decodes to nil.
func decodeGenericJSON(raw json.RawMessage) (interface{}, error) {
	var v interface{}
	var err error
	if raw != nil {
		err = json.Unmarshal(raw, &v)
	}
	return v, err
}

type unknownHandlerError struct{ name string }

func (e *unknownHandlerError) Error() string {
	return "comlink: no transfer handler registered under name " + e.name
}
