package audit

// AuthOutcome is the result of the authentication middleware layer.
type AuthOutcome uint8

const (
	AuthAccept AuthOutcome = iota + 1
	AuthRejectMissingKey
	AuthRejectInvalidKey
)

// RateLimitOutcome is the result of the rate limit middleware layer.
type RateLimitOutcome uint8

const (
	RateLimitAllow RateLimitOutcome = iota + 1
	RateLimitDeny
)

// Direction distinguishes request-body-to-upstream from
// response-body-to-client BodyChunk events.
type Direction uint8

const (
	DirectionUp Direction = iota + 1
	DirectionDown
)

// ErrorCategory mirrors the client-visible error taxonomy of spec.md §7.
type ErrorCategory uint8

const (
	ErrorBadRequest ErrorCategory = iota + 1
	ErrorUnauthenticated
	ErrorRateLimited
	ErrorUpstreamTimeout
	ErrorUpstreamUnavailable
	ErrorInternal
)

// RequestReceived is emitted once per request, at entry.
type RequestReceived struct {
	RequestID  [16]byte
	Method     string
	Path       string
	Headers    []Header
	ReceivedAt int64 // unix nanos, wall clock, captured once (spec.md §4.5)
}

func (e *RequestReceived) EventKind() Kind             { return KindRequestReceived }
func (e *RequestReceived) RequestIDBytes() [16]byte    { return e.RequestID }
func (e *RequestReceived) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.str(e.Method)
	w.str(e.Path)
	w.headers(e.Headers)
	w.i64(e.ReceivedAt)
	return w.finish(KindRequestReceived, bodyStart)
}

// AuthDecision is emitted by the authentication middleware layer.
type AuthDecision struct {
	RequestID [16]byte
	Outcome   AuthOutcome
	Principal string // set only when Outcome == AuthAccept
}

func (e *AuthDecision) EventKind() Kind          { return KindAuthDecision }
func (e *AuthDecision) RequestIDBytes() [16]byte { return e.RequestID }
func (e *AuthDecision) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.byte(byte(e.Outcome))
	w.str(e.Principal)
	return w.finish(KindAuthDecision, bodyStart)
}

// RateLimitDecision is emitted by the rate limit middleware layer.
type RateLimitDecision struct {
	RequestID  [16]byte
	Outcome    RateLimitOutcome
	TokenCount int64
}

func (e *RateLimitDecision) EventKind() Kind          { return KindRateLimitDecision }
func (e *RateLimitDecision) RequestIDBytes() [16]byte { return e.RequestID }
func (e *RateLimitDecision) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.byte(byte(e.Outcome))
	w.i64(e.TokenCount)
	return w.finish(KindRateLimitDecision, bodyStart)
}

// ForwardStarted is emitted when the Forwarder begins the upstream call.
type ForwardStarted struct {
	RequestID      [16]byte
	UpstreamTarget string
	StartedAt      int64 // unix nanos
}

func (e *ForwardStarted) EventKind() Kind          { return KindForwardStarted }
func (e *ForwardStarted) RequestIDBytes() [16]byte { return e.RequestID }
func (e *ForwardStarted) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.str(e.UpstreamTarget)
	w.i64(e.StartedAt)
	return w.finish(KindForwardStarted, bodyStart)
}

// ResponseReceived is emitted when the upstream response headers arrive.
type ResponseReceived struct {
	RequestID  [16]byte
	Status     int32
	Headers    []Header
	LatencyNs  int64
}

func (e *ResponseReceived) EventKind() Kind          { return KindResponseReceived }
func (e *ResponseReceived) RequestIDBytes() [16]byte { return e.RequestID }
func (e *ResponseReceived) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.u32(uint32(e.Status))
	w.headers(e.Headers)
	w.i64(e.LatencyNs)
	return w.finish(KindResponseReceived, bodyStart)
}

// BodyChunk is emitted per chunk in either direction. It never carries body
// bytes, only length and a rolling checksum (spec.md §3, §4.2).
type BodyChunk struct {
	RequestID [16]byte
	Direction Direction
	Offset    int64
	Length    int32
	Checksum  uint64 // xxhash64 of the chunk
}

func (e *BodyChunk) EventKind() Kind          { return KindBodyChunk }
func (e *BodyChunk) RequestIDBytes() [16]byte { return e.RequestID }
func (e *BodyChunk) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.byte(byte(e.Direction))
	w.i64(e.Offset)
	w.u32(uint32(e.Length))
	w.u64(e.Checksum)
	return w.finish(KindBodyChunk, bodyStart)
}

// RequestCompleted is emitted exactly once per request, on every exit path
// (spec.md §4.8).
type RequestCompleted struct {
	RequestID      [16]byte
	TerminalStatus string
	TotalLatencyNs int64
}

func (e *RequestCompleted) EventKind() Kind          { return KindRequestCompleted }
func (e *RequestCompleted) RequestIDBytes() [16]byte { return e.RequestID }
func (e *RequestCompleted) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.str(e.TerminalStatus)
	w.i64(e.TotalLatencyNs)
	return w.finish(KindRequestCompleted, bodyStart)
}

// Error is emitted whenever a middleware layer or the Forwarder fails.
type Error struct {
	RequestID [16]byte
	Category  ErrorCategory
	Message   string
}

func (e *Error) EventKind() Kind          { return KindError }
func (e *Error) RequestIDBytes() [16]byte { return e.RequestID }
func (e *Error) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.byte(byte(e.Category))
	w.str(e.Message)
	return w.finish(KindError, bodyStart)
}

// AuditGap is the encodable form of a gap marker: a sequence range that
// could not be read because producers overwrote it (spec.md §4.4). The
// Drainer reports gaps through Sink.Gap with the skipped count and does not
// build this record itself. It carries no request-id: it describes a loss
// across possibly many requests at once.
type AuditGap struct {
	Skipped uint64
}

func (e *AuditGap) EventKind() Kind          { return KindAuditGap }
func (e *AuditGap) RequestIDBytes() [16]byte { return [16]byte{} }
func (e *AuditGap) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.u64(e.Skipped)
	return w.finish(KindAuditGap, bodyStart)
}

// LogPhase distinguishes the entry line from the exit line of an
// AccessLogLine pair.
type LogPhase uint8

const (
	LogPhaseEntry LogPhase = iota + 1
	LogPhaseExit
)

// AccessLogLine is the Logging middleware layer's structured entry/exit
// record (spec.md §4.6 item 4), sampled at config.LoggingSampleRate.
type AccessLogLine struct {
	RequestID [16]byte
	Phase     LogPhase
	Method    string
	Path      string
	Status    int32 // 0 on the entry line
	LatencyNs int64 // 0 on the entry line
}

func (e *AccessLogLine) EventKind() Kind          { return KindAccessLogLine }
func (e *AccessLogLine) RequestIDBytes() [16]byte { return e.RequestID }
func (e *AccessLogLine) Encode(scratch []byte) (int, error) {
	w, bodyStart := newEventWriter(scratch)
	w.bytes16(e.RequestID)
	w.byte(byte(e.Phase))
	w.str(e.Method)
	w.str(e.Path)
	w.u32(uint32(e.Status))
	w.i64(e.LatencyNs)
	return w.finish(KindAccessLogLine, bodyStart)
}
