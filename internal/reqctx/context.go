// Package reqctx implements the per-request identity, timing, and
// correlation handle described in spec.md §3 ("Request Context") and §4.5.
//
// A Context is created once by the Dispatcher when a request is accepted,
// mutated only by the goroutine handling that request, and never shared by
// reference with the Publisher: every audit event copies the fields it
// needs out of the Context (spec.md §3, "Exclusively owned by the task...").
package reqctx

import (
	"net/url"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// clock is a package-level cached clock: one periodic syscall feeds every
// request's wall-clock stamp instead of each request paying for its own
// time.Now(), the same tradeoff agilira-lethe makes for its rotation
// timestamps (lethe.go's timeCache field).
var clock = timecache.NewWithResolution(time.Millisecond)

// ID is the 128-bit time-ordered request identifier (spec.md §3, §4.5, §6).
// UUIDv7 embeds a millisecond timestamp in its high bits, making it
// naturally time-ordered and exactly the shape spec.md asks for.
type ID [16]byte

// String renders the canonical text form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// NewID generates a fresh time-ordered request id.
func NewID() ID {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the runtime's random source is broken; fall
		// back to a random v4 rather than propagating an error through a
		// hot-path call that spec.md requires to never fail.
		u = uuid.New()
	}
	return ID(u)
}

// ParseID adopts a client-supplied correlation header if it is a valid
// 128-bit time-ordered identifier in canonical text form. Invalid or absent
// values are replaced with a freshly generated ID (spec.md §4.6 item 1, §6).
func ParseID(s string) (id ID, adopted bool) {
	if s == "" {
		return NewID(), false
	}
	u, err := uuid.Parse(s)
	if err != nil || len(s) != 36 || u.Version() != 7 {
		return NewID(), false
	}
	return ID(u), true
}

// Context is the per-request state owned exclusively by the task handling
// one request. It is created by the Dispatcher and destroyed when the
// response is fully written or the task aborts.
type Context struct {
	RequestID      ID
	ClientPrincipal string // "anonymous" until auth resolves one
	ReceivedAt     time.Time
	ReceivedAtWall int64 // unix nanos, captured once for the audit record
	Deadline       time.Time
	HasDeadline    bool
	UpstreamTarget *url.URL

	BytesIn  int64
	BytesOut int64

	TerminalStatus string
}

// New creates a Context for an incoming request. ReceivedAt is time.Now()
// captured when New is called, so total-latency timing uses the monotonic
// clock exclusively, per spec.md §4.5.
func New(requestID ID, deadline time.Duration) *Context {
	now := time.Now()
	c := &Context{
		RequestID:       requestID,
		ClientPrincipal: "anonymous",
		ReceivedAt:      now,
		ReceivedAtWall:  clock.CachedTime().UnixNano(),
	}
	if deadline > 0 {
		c.Deadline = now.Add(deadline)
		c.HasDeadline = true
	}
	return c
}

// Elapsed returns the monotonic duration since the request was received.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.ReceivedAt)
}

// DeadlineExceeded reports whether the context's deadline, if any, has
// passed.
func (c *Context) DeadlineExceeded() bool {
	return c.HasDeadline && time.Now().After(c.Deadline)
}
