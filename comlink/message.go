package comlink

import "encoding/json"

// WireTag distinguishes the two wire-value shapes: RAW carries a value delivered by the channel's own clone/transfer
// mechanism; HANDLER defers materialization to a named transfer handler.
type WireTag string

const (
	TagRaw     WireTag = "RAW"
	TagHandler WireTag = "HANDLER"
)

var legacyWireTagCodes = map[WireTag]int{
	TagRaw:     0,
	TagHandler: 1,
}

var legacyCodeToWireTag = func() map[int]WireTag {
	m := make(map[int]WireTag, len(legacyWireTagCodes))
	for tag, code := range legacyWireTagCodes {
		m[code] = tag
	}
	return m
}()

// WireValue is the in-flight representation of any value that crosses an
// endpoint: either RAW (Value holds the value verbatim) or HANDLER (Name
// identifies the transfer handler that produced Payload).
type WireValue struct {
	Tag     WireTag
	Name    string          // set only when Tag == TagHandler
	Payload json.RawMessage // handler-serialized payload, or the raw value
}

func marshalWireValue(wv WireValue, legacy bool) (json.RawMessage, error) {
	var out struct {
		Type  json.RawMessage `json:"type"`
		Name  string          `json:"name,omitempty"`
		Value json.RawMessage `json:"value,omitempty"`
	}
	tagRaw, err := marshalWireTag(wv.Tag, legacy)
	if err != nil {
		return nil, err
	}
	out.Type = tagRaw
	out.Name = wv.Name
	out.Value = wv.Payload
	return json.Marshal(out)
}

func unmarshalWireValue(raw json.RawMessage) (WireValue, bool, error) {
	var in struct {
		Type  json.RawMessage `json:"type"`
		Name  string          `json:"name,omitempty"`
		Value json.RawMessage `json:"value,omitempty"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return WireValue{}, false, err
	}
	tag, legacy, err := unmarshalWireTag(in.Type)
	if err != nil {
		return WireValue{}, false, err
	}
	return WireValue{Tag: tag, Name: in.Name, Payload: in.Value}, legacy, nil
}

func marshalWireTag(tag WireTag, legacy bool) (json.RawMessage, error) {
	if legacy {
		return json.Marshal(legacyWireTagCodes[tag])
	}
	return json.Marshal(tag)
}

func unmarshalWireTag(raw json.RawMessage) (tag WireTag, legacy bool, err error) {
	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		tag, ok := legacyCodeToWireTag[code]
		if !ok {
			return "", true, &unknownOperationError{raw: string(raw)}
		}
		return tag, true, nil
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", false, err
	}
	return tag, false, nil
}

// Message is the wire request/reply envelope.
type Message struct {
	ID           string
	Type         Operation
	Path         []string
	Value        *WireValue
	ArgumentList []WireValue
}

type wireMessage struct {
	ID           string            `json:"id"`
	Type         json.RawMessage   `json:"type"`
	Path         []string          `json:"path,omitempty"`
	Value        json.RawMessage   `json:"value,omitempty"`
	ArgumentList []json.RawMessage `json:"argumentList,omitempty"`
}

func encodeMessage(m *Message, legacy bool) ([]byte, error) {
	opRaw, err := encodeOperation(m.Type, legacy)
	if err != nil {
		return nil, err
	}
	w := wireMessage{ID: m.ID, Type: opRaw, Path: m.Path}
	if m.Value != nil {
		v, err := marshalWireValue(*m.Value, legacy)
		if err != nil {
			return nil, err
		}
		w.Value = v
	}
	for _, a := range m.ArgumentList {
		v, err := marshalWireValue(a, legacy)
		if err != nil {
			return nil, err
		}
		w.ArgumentList = append(w.ArgumentList, v)
	}
	return json.Marshal(w)
}

// decodeMessage parses a raw inbound payload. legacy reports whether the
// message used the legacy numeric operation tag; all outbound replies for
// that call must reuse the same encoding.
func decodeMessage(data []byte) (msg *Message, legacy bool, err error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false, err
	}
	op, legacy, err := decodeOperation(w.Type)
	if err != nil {
		return nil, legacy, err
	}
	m := &Message{ID: w.ID, Type: op, Path: w.Path}
	if w.Value != nil {
		v, _, err := unmarshalWireValue(w.Value)
		if err != nil {
			return nil, legacy, err
		}
		m.Value = &v
	}
	for _, raw := range w.ArgumentList {
		v, _, err := unmarshalWireValue(raw)
		if err != nil {
			return nil, legacy, err
		}
		m.ArgumentList = append(m.ArgumentList, v)
	}
	return m, legacy, nil
}
