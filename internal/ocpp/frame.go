package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame type codes per OCPP-J.
const (
	TypeCall       = 2
	TypeCallResult = 3
	TypeCallError  = 4
)

// ErrMalformedFrame reports a frame that does not match any known shape.
// Callers log and drop such input; it never terminates a connection.
var ErrMalformedFrame = errors.New("ocpp: malformed frame")

// Frame is a parsed OCPP wire message. Fields beyond Type and UniqueID are
// populated depending on the type code.
type Frame struct {
	Type             int
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Parse decodes a raw JSON array frame into a Frame struct.
func Parse(data []byte) (*Frame, error) {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if len(array) < 3 {
		return nil, fmt.Errorf("%w: %d elements", ErrMalformedFrame, len(array))
	}

	var msgType int
	if err := json.Unmarshal(array[0], &msgType); err != nil {
		return nil, fmt.Errorf("%w: type code: %v", ErrMalformedFrame, err)
	}

	frame := &Frame{Type: msgType}
	if err := json.Unmarshal(array[1], &frame.UniqueID); err != nil {
		return nil, fmt.Errorf("%w: unique id: %v", ErrMalformedFrame, err)
	}

	switch msgType {
	case TypeCall:
		if len(array) != 4 {
			return nil, fmt.Errorf("%w: CALL needs 4 elements, got %d", ErrMalformedFrame, len(array))
		}
		if err := json.Unmarshal(array[2], &frame.Action); err != nil {
			return nil, fmt.Errorf("%w: action: %v", ErrMalformedFrame, err)
		}
		frame.Payload = array[3]
	case TypeCallResult:
		if len(array) != 3 {
			return nil, fmt.Errorf("%w: CALLRESULT needs 3 elements, got %d", ErrMalformedFrame, len(array))
		}
		frame.Payload = array[2]
	case TypeCallError:
		if len(array) != 5 {
			return nil, fmt.Errorf("%w: CALLERROR needs 5 elements, got %d", ErrMalformedFrame, len(array))
		}
		if err := json.Unmarshal(array[2], &frame.ErrorCode); err != nil {
			return nil, fmt.Errorf("%w: error code: %v", ErrMalformedFrame, err)
		}
		if err := json.Unmarshal(array[3], &frame.ErrorDescription); err != nil {
			return nil, fmt.Errorf("%w: error description: %v", ErrMalformedFrame, err)
		}
		frame.ErrorDetails = array[4]
	default:
		return nil, fmt.Errorf("%w: unknown type code %d", ErrMalformedFrame, msgType)
	}

	return frame, nil
}

// BuildCall builds an outbound CALL frame.
func BuildCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{TypeCall, uniqueID, action, json.RawMessage(body)}
	return json.Marshal(frame)
}

// BuildCallResult builds a CALLRESULT reply frame.
func BuildCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{TypeCallResult, uniqueID, json.RawMessage(body)}
	return json.Marshal(frame)
}

// BuildCallError builds a CALLERROR reply frame.
func BuildCallError(uniqueID, code, description string) ([]byte, error) {
	frame := []interface{}{TypeCallError, uniqueID, code, description, map[string]string{}}
	return json.Marshal(frame)
}

// Decode is a convenience helper for handlers to unmarshal payloads.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, err
	}
	return target, nil
}
