// Package auditsink implements the Drainer (spec.md §4.4) and the Sink
// boundary it calls: the single consumer task that reads the ring buffer in
// publication order and hands records -- or synthetic gap markers -- to an
// external collaborator.
//
// The shutdown-drain loop (flush what remains, bounded by a hard deadline,
// then stop) is grounded on the teacher's own EventBatcher.Shutdown
// (order-matching-engine/internal/disruptor/batcher.go): close a signal
// channel, drain what is left, return once empty.
package auditsink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/ringbuf"
)

// Sink is the "trait-like boundary" of spec.md §6: the Drainer calls Record
// for every successfully consumed slot and Gap whenever it detects skipped
// sequences. Implementations (file, network exporter) are external
// collaborators; auditsink ships one concrete FileSink.
type Sink interface {
	Record(seq uint64, kind uint8, body []byte) error
	Gap(skipped uint64) error
}

// minBackoff and maxBackoff bound the Drainer's idle spin: an Empty result
// backs off exponentially up to maxBackoff rather than busy-spinning a full
// CPU core while the ring buffer has nothing to consume.
const (
	minBackoff = 10 * time.Microsecond
	maxBackoff = time.Millisecond
)

// Drainer is the single consumer of a ring buffer.
type Drainer struct {
	ring *ringbuf.Buffer
	sink Sink
	log  *zap.Logger
}

// New creates a Drainer. Only one Drainer may ever be run against a given
// ring buffer (spec.md §5, "exactly one Drainer... enforcement is by
// construction"); this package does not itself enforce that, the caller
// must spawn exactly one.
func New(ring *ringbuf.Buffer, sink Sink, log *zap.Logger) *Drainer {
	return &Drainer{ring: ring, sink: sink, log: log}
}

// Run drains the ring buffer until ctx is cancelled, then continues
// draining whatever remains until the ring reports Empty or shutdownDeadline
// elapses, matching spec.md §5's "drains until the ring is empty or a hard
// deadline expires".
func (d *Drainer) Run(ctx context.Context, shutdownDeadline time.Duration) {
	backoff := minBackoff

	for {
		select {
		case <-ctx.Done():
			d.drainRemaining(shutdownDeadline)
			return
		default:
		}

		if d.consumeOne() {
			backoff = minBackoff
			continue
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// drainRemaining flushes whatever is left in the ring buffer after
// cancellation, bounded by deadline.
func (d *Drainer) drainRemaining(deadline time.Duration) {
	cutoff := time.Now().Add(deadline)
	for time.Now().Before(cutoff) {
		if !d.consumeOne() {
			return
		}
	}
}

// consumeOne performs one try_consume call and reports whether it consumed
// a record (Record or Gap); false means Empty.
func (d *Drainer) consumeOne() bool {
	res := d.ring.TryConsume()
	switch res.Outcome {
	case ringbuf.Record:
		version, kind, body, err := audit.DecodeEnvelope(res.Bytes)
		if err != nil {
			d.log.Error("auditsink: dropping malformed record", zap.Uint64("seq", res.Seq), zap.Error(err))
			return true
		}
		_ = version
		if err := d.sink.Record(res.Seq, uint8(kind), body); err != nil {
			d.log.Error("auditsink: sink rejected record", zap.Uint64("seq", res.Seq), zap.Error(err))
		}
		return true
	case ringbuf.Gap:
		if err := d.sink.Gap(res.Skipped); err != nil {
			d.log.Error("auditsink: sink rejected gap marker", zap.Uint64("skipped", res.Skipped), zap.Error(err))
		}
		return true
	default: // ringbuf.Empty
		return false
	}
}
