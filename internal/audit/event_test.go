package audit

import (
	"testing"
)

func uuidLike(b byte) [16]byte {
	var id [16]byte
	for i := range id {
		id[i] = b
	}
	return id
}

func TestRoundTrip_AllKinds(t *testing.T) {
	scratch := make([]byte, 512)

	cases := []Event{
		&RequestReceived{
			RequestID:  uuidLike(1),
			Method:     "POST",
			Path:       "/v1/chat",
			Headers:    []Header{{Name: "Content-Type", Value: "application/json"}},
			ReceivedAt: 123,
		},
		&AuthDecision{RequestID: uuidLike(2), Outcome: AuthAccept, Principal: "p1"},
		&RateLimitDecision{RequestID: uuidLike(3), Outcome: RateLimitDeny, TokenCount: 0},
		&ForwardStarted{RequestID: uuidLike(4), UpstreamTarget: "http://upstream", StartedAt: 456},
		&ResponseReceived{RequestID: uuidLike(5), Status: 200, Headers: nil, LatencyNs: 789},
		&BodyChunk{RequestID: uuidLike(6), Direction: DirectionUp, Offset: 0, Length: 1024, Checksum: 0xdeadbeef},
		&RequestCompleted{RequestID: uuidLike(7), TerminalStatus: "ok", TotalLatencyNs: 999},
		&Error{RequestID: uuidLike(8), Category: ErrorUpstreamTimeout, Message: "deadline exceeded"},
		&AuditGap{Skipped: 42},
		&AccessLogLine{RequestID: uuidLike(9), Phase: LogPhaseExit, Method: "POST", Path: "/v1/chat", Status: 200, LatencyNs: 321},
	}

	for _, want := range cases {
		n, err := want.Encode(scratch)
		if err != nil {
			t.Fatalf("%s: encode: %v", want.EventKind(), err)
		}

		version, kind, body, err := DecodeEnvelope(scratch[:n])
		if err != nil {
			t.Fatalf("%s: decode envelope: %v", want.EventKind(), err)
		}
		if version != SchemaVersion {
			t.Fatalf("%s: expected schema version %d, got %d", want.EventKind(), SchemaVersion, version)
		}
		if kind != want.EventKind() {
			t.Fatalf("expected kind %s, got %s", want.EventKind(), kind)
		}

		got, err := Decode(kind, body)
		if err != nil {
			t.Fatalf("%s: typed decode: %v", want.EventKind(), err)
		}
		if got.RequestIDBytes() != want.RequestIDBytes() {
			t.Fatalf("%s: request id mismatch", want.EventKind())
		}
	}
}

func TestEncode_ScratchTooSmall(t *testing.T) {
	e := &RequestReceived{Method: "GET", Path: "/very/long/path/that/does/not/fit"}
	_, err := e.Encode(make([]byte, EnvelopeSize+2))
	if err != ErrScratchTooSmall {
		t.Fatalf("expected ErrScratchTooSmall, got %v", err)
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	a := Checksum([]byte("hello world"))
	b := Checksum([]byte("hello world"))
	if a != b {
		t.Fatalf("expected deterministic checksum, got %d != %d", a, b)
	}
	if c := Checksum([]byte("hello worlD")); c == a {
		t.Fatalf("expected different checksum for different input")
	}
}
