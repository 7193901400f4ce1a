package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestParseCall(t *testing.T) {
	raw := []byte(`[2,"msg-1","BootNotification",{"chargePointVendor":"ACME"}]`)
	frame, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse call: %v", err)
	}
	if frame.Type != TypeCall {
		t.Fatalf("expected type %d, got %d", TypeCall, frame.Type)
	}
	if frame.UniqueID != "msg-1" {
		t.Fatalf("expected unique id msg-1, got %s", frame.UniqueID)
	}
	if frame.Action != "BootNotification" {
		t.Fatalf("expected action BootNotification, got %s", frame.Action)
	}

	var payload map[string]string
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["chargePointVendor"] != "ACME" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestParseCallResult(t *testing.T) {
	raw := []byte(`[3,"msg-2",{"status":"Accepted"}]`)
	frame, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse call result: %v", err)
	}
	if frame.Type != TypeCallResult {
		t.Fatalf("expected type %d, got %d", TypeCallResult, frame.Type)
	}
	if frame.Action != "" {
		t.Fatalf("call result must not carry an action, got %s", frame.Action)
	}
}

func TestParseCallError(t *testing.T) {
	raw := []byte(`[4,"msg-3","InternalError","something broke",{}]`)
	frame, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse call error: %v", err)
	}
	if frame.ErrorCode != "InternalError" {
		t.Fatalf("expected error code InternalError, got %s", frame.ErrorCode)
	}
	if frame.ErrorDescription != "something broke" {
		t.Fatalf("unexpected description: %s", frame.ErrorDescription)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"not an array", `{"a":1}`},
		{"too short", `[2,"x"]`},
		{"call missing payload", `[2,"x","Heartbeat"]`},
		{"call result extra element", `[3,"x",{},{}]`},
		{"call error short", `[4,"x","Code","desc"]`},
		{"unknown type code", `[9,"x",{}]`},
		{"numeric unique id", `[2,42,"Heartbeat",{}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestBuildCallRoundTrip(t *testing.T) {
	raw, err := BuildCall("msg-9", "Reset", map[string]string{"type": "Soft"})
	if err != nil {
		t.Fatalf("build call: %v", err)
	}
	frame, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse built call: %v", err)
	}
	if frame.Action != "Reset" || frame.UniqueID != "msg-9" {
		t.Fatalf("round trip mismatch: %+v", frame)
	}
}

func TestProcessorUnknownAction(t *testing.T) {
	router := NewRouter()
	processor := NewProcessor(router, nil, zap.NewNop())

	frame := &Frame{Type: TypeCall, UniqueID: "u-1", Action: "DataTransfer", Payload: json.RawMessage(`{}`)}
	response := processor.HandleCall(context.Background(), "ST001", frame)

	parsed, err := Parse(response)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if parsed.Type != TypeCallError {
		t.Fatalf("expected CALLERROR, got type %d", parsed.Type)
	}
	if parsed.ErrorCode != "NotSupported" {
		t.Fatalf("expected NotSupported, got %s", parsed.ErrorCode)
	}
	if parsed.UniqueID != "u-1" {
		t.Fatalf("response must echo the request id, got %s", parsed.UniqueID)
	}
}

func TestProcessorHandlerError(t *testing.T) {
	router := NewRouter()
	router.Register("Heartbeat", func(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
		return nil, errors.New("db unavailable")
	})
	processor := NewProcessor(router, nil, zap.NewNop())

	frame := &Frame{Type: TypeCall, UniqueID: "u-2", Action: "Heartbeat", Payload: json.RawMessage(`{}`)}
	response := processor.HandleCall(context.Background(), "ST001", frame)

	parsed, err := Parse(response)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if parsed.Type != TypeCallError || parsed.ErrorCode != "InternalError" {
		t.Fatalf("expected InternalError CALLERROR, got %+v", parsed)
	}
}

func TestProcessorSuccess(t *testing.T) {
	router := NewRouter()
	router.Register("Heartbeat", func(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
		return map[string]string{"currentTime": "2026-01-02T03:04:05Z"}, nil
	})
	processor := NewProcessor(router, nil, zap.NewNop())

	frame := &Frame{Type: TypeCall, UniqueID: "u-3", Action: "Heartbeat", Payload: json.RawMessage(`{}`)}
	response := processor.HandleCall(context.Background(), "ST001", frame)

	parsed, err := Parse(response)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if parsed.Type != TypeCallResult || parsed.UniqueID != "u-3" {
		t.Fatalf("expected CALLRESULT for u-3, got %+v", parsed)
	}
}
