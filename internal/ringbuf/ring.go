// Package ringbuf implements the bounded, lock-free, multi-producer /
// single-consumer slot array that carries audit events off the hot path.
//
// Design follows the LMAX-disruptor-style slot array in
// order-matching-engine/internal/disruptor, generalized from domain structs
// to fixed-size byte payloads so the publish side never allocates, and with
// overwrite-on-full semantics instead of backpressure: a producer that laps
// the consumer steals the oldest unread slot rather than spinning forever or
// blocking, because the hot path must never block on audit capacity.
//
// Safety rests entirely on the per-slot state machine (Empty -> Writing ->
// Ready -> Reading -> Empty). Payload bytes are written only by a producer
// holding Writing and read only by the consumer holding Reading; those two
// states are mutually exclusive by construction. Run tests in this package
// with -race; any violation of that exclusivity is a correctness bug.
package ringbuf

import (
	"runtime"
	"sync/atomic"
)

// State is a slot's position in the Empty/Writing/Ready/Reading cycle.
type State uint32

const (
	StateEmpty State = iota
	StateWriting
	StateReady
	StateReading
)

// Outcome is the result of a publish attempt.
type Outcome uint8

const (
	// Published means the event was written to a slot under the returned sequence.
	Published Outcome = iota
	// Overflow means the slot was contended (Writing/Reading) beyond the spin
	// budget; the event was dropped. Counted, never logged from the hot path.
	Overflow
	// PayloadTooLarge means the encoded event exceeds the slot payload capacity.
	PayloadTooLarge
)

// maxPublishSpins bounds the CAS retry window on slot contention. At ~5-10ns
// per failed CAS this is a handful of microseconds worst case, small enough
// that the hot path's <5ms budget (spec.md §1) is never at risk even under
// heavy contention; past this bound the producer gives up and drops.
const maxPublishSpins = 64

// slot is one fixed-size cell. Padding keeps adjacent slots on separate cache
// lines so one producer's CAS traffic doesn't fault in a neighbor's slot.
type slot struct {
	state   atomic.Uint32
	seq     atomic.Uint64
	kind    atomic.Uint32
	length  atomic.Uint32
	payload []byte
	_       [32]byte
}

// Stats are the monotonic counters exposed by the ring buffer's stats operation.
type Stats struct {
	Published       uint64
	Consumed        uint64
	Overwritten     uint64
	Overflow        uint64
	PayloadTooLarge uint64
}

// Buffer is the bounded MPSC slot array described in spec.md §3/§4.1.
type Buffer struct {
	mask       uint64
	slots      []slot
	payloadCap int

	publishSeq atomic.Uint64
	consumeSeq atomic.Uint64

	published       atomic.Uint64
	consumed        atomic.Uint64
	overwritten     atomic.Uint64
	overflow        atomic.Uint64
	payloadTooLarge atomic.Uint64
}

// New allocates a ring buffer with the given number of slots (must be a
// power of two, as in disruptor.NewRingBuffer) and per-slot payload capacity
// in bytes. All slot storage is allocated once here; no further allocation
// occurs on the publish path.
func New(capacitySlots, payloadBytes int) *Buffer {
	if capacitySlots <= 0 || capacitySlots&(capacitySlots-1) != 0 {
		panic("ringbuf: capacitySlots must be a power of two")
	}
	if payloadBytes <= 0 {
		panic("ringbuf: payloadBytes must be positive")
	}

	b := &Buffer{
		mask:       uint64(capacitySlots - 1),
		slots:      make([]slot, capacitySlots),
		payloadCap: payloadBytes,
	}
	for i := range b.slots {
		b.slots[i].payload = make([]byte, payloadBytes)
	}
	// consumeSeq starts at 0: the first record a drainer will look for is
	// sequence 0, matching the first sequence a producer ever claims.
	return b
}

// Capacity returns the number of slots.
func (b *Buffer) Capacity() int { return len(b.slots) }

// PayloadCap returns the per-slot payload capacity in bytes.
func (b *Buffer) PayloadCap() int { return b.payloadCap }

// TryPublish writes kind/payload into the next slot. It never blocks: under
// contention it spins a bounded number of CAS attempts and then reports
// Overflow rather than waiting.
func (b *Buffer) TryPublish(kind uint8, payload []byte) (seq uint64, outcome Outcome) {
	if len(payload) > b.payloadCap {
		b.payloadTooLarge.Add(1)
		return 0, PayloadTooLarge
	}

	seq = b.publishSeq.Add(1) - 1
	idx := seq & b.mask
	s := &b.slots[idx]

	for attempt := 0; attempt < maxPublishSpins; attempt++ {
		switch State(s.state.Load()) {
		case StateEmpty:
			if s.state.CompareAndSwap(uint32(StateEmpty), uint32(StateWriting)) {
				b.writeSlot(s, seq, kind, payload)
				return seq, Published
			}
		case StateReady:
			// The resident record is older than ours (sequences only grow),
			// so we overwrite it: the drainer has lapped behind.
			if s.seq.Load() < seq {
				if s.state.CompareAndSwap(uint32(StateReady), uint32(StateWriting)) {
					b.overwritten.Add(1)
					b.writeSlot(s, seq, kind, payload)
					return seq, Published
				}
			}
		default:
			// Writing or Reading: another producer (or the drainer) holds
			// this slot. Rare outside of pathological contention; yield and
			// retry rather than spin hot.
			runtime.Gosched()
		}
	}

	b.overflow.Add(1)
	return 0, Overflow
}

// writeSlot performs the actual payload write and the Writing->Ready
// transition. The caller must already hold Writing on s.
func (b *Buffer) writeSlot(s *slot, seq uint64, kind uint8, payload []byte) {
	n := copy(s.payload, payload)
	s.length.Store(uint32(n))
	s.kind.Store(uint32(kind))
	// seq must be visible before the Ready store below makes the slot
	// observable to the consumer; the state store acts as the release fence.
	s.seq.Store(seq)
	s.state.Store(uint32(StateReady))
	b.published.Add(1)
}

// ConsumeOutcome is the result of a consume attempt.
type ConsumeOutcome uint8

const (
	Empty ConsumeOutcome = iota
	Record
	Gap
)

// ConsumeResult is returned by TryConsume.
type ConsumeResult struct {
	Outcome ConsumeOutcome
	Seq     uint64
	Kind    uint8
	Bytes   []byte // only valid when Outcome == Record; owned by the caller
	Skipped uint64 // only valid when Outcome == Gap
}

// TryConsume reads the next slot in publication order. It must only ever be
// called by a single goroutine (the Drainer); concurrent callers would
// violate the Reading-state exclusivity invariant.
func (b *Buffer) TryConsume() ConsumeResult {
	c := b.consumeSeq.Load()
	idx := c & b.mask
	s := &b.slots[idx]

	if State(s.state.Load()) != StateReady {
		// Either nothing published yet at this sequence, or a producer is
		// mid-write (Writing) right at our trailing edge. Either way there
		// is nothing safe to read; the drainer backs off and retries.
		return ConsumeResult{Outcome: Empty}
	}

	storedSeq := s.seq.Load()
	switch {
	case storedSeq < c:
		// Stale observation; shouldn't happen in steady state, but never
		// read data older than what we're looking for.
		return ConsumeResult{Outcome: Empty}
	case storedSeq > c:
		// The record we wanted was overwritten before we got to it. Resync
		// to the record that IS here and report the gap; the next call will
		// consume it.
		skipped := storedSeq - c
		b.consumeSeq.Store(storedSeq)
		return ConsumeResult{Outcome: Gap, Skipped: skipped}
	}

	if !s.state.CompareAndSwap(uint32(StateReady), uint32(StateReading)) {
		// Another state transition beat us here; shouldn't happen with a
		// single consumer, but never block waiting for it.
		return ConsumeResult{Outcome: Empty}
	}

	length := s.length.Load()
	out := make([]byte, length)
	copy(out, s.payload[:length])
	kind := uint8(s.kind.Load())

	s.state.Store(uint32(StateEmpty))
	b.consumeSeq.Store(c + 1)
	b.consumed.Add(1)

	return ConsumeResult{Outcome: Record, Seq: storedSeq, Kind: kind, Bytes: out}
}

// Stats returns a snapshot of the monotonic counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Published:       b.published.Load(),
		Consumed:        b.consumed.Load(),
		Overwritten:     b.overwritten.Load(),
		Overflow:        b.overflow.Load(),
		PayloadTooLarge: b.payloadTooLarge.Load(),
	}
}
