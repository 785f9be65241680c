package audit

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Checksum computes the rolling checksum BodyChunk records carry. xxhash is
// non-cryptographic and allocation-free for this size class, which matters
// because Forwarder calls it once per streamed chunk on the hot path
// (spec.md §4.7).
func Checksum(chunk []byte) uint64 {
	return xxhash.Sum64(chunk)
}

// reader is the decode-side counterpart of writer.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = ErrShortEnvelope
		return false
	}
	return true
}

func (r *reader) byte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) bytes16() [16]byte {
	var out [16]byte
	if !r.need(16) {
		return out
	}
	copy(out[:], r.buf[r.off:r.off+16])
	r.off += 16
	return out
}

func (r *reader) str() string {
	if !r.need(2) {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	if !r.need(n) {
		return ""
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s
}

func (r *reader) headers() []Header {
	if !r.need(1) {
		return nil
	}
	n := int(r.buf[r.off])
	r.off++
	if n == 0 {
		return nil
	}
	out := make([]Header, n)
	for i := 0; i < n; i++ {
		out[i] = Header{Name: r.str(), Value: r.str()}
	}
	return out
}

// Decode reconstructs a typed Event from an encoded record body and its kind,
// as produced by DecodeEnvelope. This is not used by the Drainer (which
// forwards opaque bytes, per spec.md §4.4) but supports tests and any sink
// that wants the typed view.
func Decode(kind Kind, body []byte) (Event, error) {
	r := &reader{buf: body}

	var ev Event
	switch kind {
	case KindRequestReceived:
		e := &RequestReceived{}
		e.RequestID = r.bytes16()
		e.Method = r.str()
		e.Path = r.str()
		e.Headers = r.headers()
		e.ReceivedAt = r.i64()
		ev = e
	case KindAuthDecision:
		e := &AuthDecision{}
		e.RequestID = r.bytes16()
		e.Outcome = AuthOutcome(r.byte())
		e.Principal = r.str()
		ev = e
	case KindRateLimitDecision:
		e := &RateLimitDecision{}
		e.RequestID = r.bytes16()
		e.Outcome = RateLimitOutcome(r.byte())
		e.TokenCount = r.i64()
		ev = e
	case KindForwardStarted:
		e := &ForwardStarted{}
		e.RequestID = r.bytes16()
		e.UpstreamTarget = r.str()
		e.StartedAt = r.i64()
		ev = e
	case KindResponseReceived:
		e := &ResponseReceived{}
		e.RequestID = r.bytes16()
		e.Status = int32(r.u32())
		e.Headers = r.headers()
		e.LatencyNs = r.i64()
		ev = e
	case KindBodyChunk:
		e := &BodyChunk{}
		e.RequestID = r.bytes16()
		e.Direction = Direction(r.byte())
		e.Offset = r.i64()
		e.Length = int32(r.u32())
		e.Checksum = r.u64()
		ev = e
	case KindRequestCompleted:
		e := &RequestCompleted{}
		e.RequestID = r.bytes16()
		e.TerminalStatus = r.str()
		e.TotalLatencyNs = r.i64()
		ev = e
	case KindError:
		e := &Error{}
		e.RequestID = r.bytes16()
		e.Category = ErrorCategory(r.byte())
		e.Message = r.str()
		ev = e
	case KindAuditGap:
		e := &AuditGap{}
		e.Skipped = r.u64()
		ev = e
	case KindAccessLogLine:
		e := &AccessLogLine{}
		e.RequestID = r.bytes16()
		e.Phase = LogPhase(r.byte())
		e.Method = r.str()
		e.Path = r.str()
		e.Status = int32(r.u32())
		e.LatencyNs = r.i64()
		ev = e
	default:
		return nil, ErrShortEnvelope
	}

	if r.err != nil {
		return nil, r.err
	}
	return ev, nil
}
