// Package middleware implements the ordered hot-path layer chain of
// spec.md §4.6 (request-id -> auth -> rate-limit -> logging -> error-shaping
// -> forwarder) plus the Audit Publisher (spec.md §4.3) every layer uses to
// emit events.
//
// Every layer's contract, per spec.md §4.6, is: do not suspend, do not
// allocate on the steady-state path, emit at most one audit event.
// LoggingLayer is the exception to the last point: a sampled-in request gets
// both an entry and an exit line from it. None of these layers ever touches
// the ring buffer directly; they build audit events and hand them to
// Publisher, which is the only thing in this package that knows about
// internal/ringbuf.
package middleware

import (
	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/ringbuf"
)

// Publisher is the thin, synchronous producer facade of spec.md §4.3. It
// converts an audit.Event to bytes and calls the ring buffer's try_publish.
// It never surfaces errors to the caller: audit publication is best-effort
// by design, and the hot path must never branch on whether an audit record
// landed.
type Publisher struct {
	ring    *ringbuf.Buffer
	scratch []byte // owned by this Publisher alone; see Publish
}

// NewPublisher creates a Publisher bound to a ring buffer. Its scratch
// buffer, used to encode events before handing them to try_publish, is
// sized to ring.PayloadCap().
func NewPublisher(ring *ringbuf.Buffer) *Publisher {
	return &Publisher{
		ring:    ring,
		scratch: make([]byte, ring.PayloadCap()),
	}
}

// Publish encodes ev and attempts to place it on the ring buffer. The
// returned outcome is informational only; callers on the hot path must
// never branch on it to alter request handling, per spec.md §4.3.
//
// Publisher instances are not safe for concurrent use from multiple
// goroutines because the scratch buffer is reused across calls; each
// request-handling task should own its own Publisher (or a per-task
// scratch), which is how Dispatcher wires it (one Publisher per in-flight
// request, all sharing the same underlying ring buffer).
func (p *Publisher) Publish(ev audit.Event) ringbuf.Outcome {
	n, err := ev.Encode(p.scratch)
	if err != nil {
		// Oversized audit payload: try_publish is never called, so this
		// drop is not counted in the ring buffer's PayloadTooLarge stat;
		// the hot path never branches on this.
		return ringbuf.PayloadTooLarge
	}
	_, outcome := p.ring.TryPublish(uint8(ev.EventKind()), p.scratch[:n])
	return outcome
}
