package comlink

import "encoding/json"

// Operation is one of the six dispatchable request types. Two wire
// encodings coexist: a current string-tagged encoding and a legacy
// number-tagged encoding, selected per endpoint.
type Operation string

const (
	OpGet       Operation = "GET"
	OpSet       Operation = "SET"
	OpApply     Operation = "APPLY"
	OpConstruct Operation = "CONSTRUCT"
	OpEndpoint  Operation = "ENDPOINT"
	OpRelease   Operation = "RELEASE"
)

// legacyOperationCodes is the fixed numeric table of the legacy encoding.
var legacyOperationCodes = map[Operation]int{
	OpGet:       0,
	OpSet:       1,
	OpApply:     2,
	OpConstruct: 3,
	OpEndpoint:  4,
	OpRelease:   5,
}

var legacyCodeToOperation = func() map[int]Operation {
	m := make(map[int]Operation, len(legacyOperationCodes))
	for op, code := range legacyOperationCodes {
		m[code] = op
	}
	return m
}()

// isKnownOperation reports whether op is one of the six dispatchable
// operations. The exposer drops unrecognized operations silently.
func isKnownOperation(op Operation) bool {
	_, ok := legacyOperationCodes[op]
	return ok
}

// encodeOperation renders op using the current (string) or legacy (numeric)
// wire encoding for the given endpoint mode.
func encodeOperation(op Operation, legacy bool) (json.RawMessage, error) {
	if legacy {
		return json.Marshal(legacyOperationCodes[op])
	}
	return json.Marshal(op)
}

// decodeOperation reads an Operation off the wire, reporting whether the
// tag used the legacy numeric encoding. A numeric operation tag both
// selects the operation and marks the reply encoding for that call.
func decodeOperation(raw json.RawMessage) (op Operation, legacy bool, err error) {
	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		op, ok := legacyCodeToOperation[code]
		if !ok {
			return "", true, &unknownOperationError{raw: string(raw)}
		}
		return op, true, nil
	}
	if err := json.Unmarshal(raw, &op); err != nil {
		return "", false, err
	}
	return op, false, nil
}

type unknownOperationError struct{ raw string }

func (e *unknownOperationError) Error() string {
	return "comlink: unknown operation tag: " + e.raw
}
