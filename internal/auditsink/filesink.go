package auditsink

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// segmentHeader is the on-disk record framing: [seq uint64][kind byte]
// [length uint32][body]. Distinct from audit.EnvelopeSize because the sink
// also needs the sequence number, which the Drainer observes but the wire
// envelope itself does not carry.
const segmentHeaderSize = 8 + 1 + 4

// FileSink is the reference Sink implementation (spec.md §6, "files,
// network exporters ... are external collaborators"): it appends every
// record to a gzip-compressed segment file, using klauspost/compress's
// gzip writer the way agilira-lethe's rotation.go uses the stdlib one for
// its own rotated backups -- same shape, pack-preferred compressor.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
	gz *gzip.Writer
}

// NewFileSink opens (creating if absent) a single append-only compressed
// segment at path. Rotation/retention policy is out of scope here; the
// Dispatcher's owning process is expected to rotate sinks the way
// agilira-lethe rotates its own log files, by constructing a fresh FileSink
// against a new path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("auditsink: open segment file: %w", err)
	}
	return &FileSink{f: f, gz: gzip.NewWriter(f)}, nil
}

// Record appends one consumed record to the segment.
func (s *FileSink) Record(seq uint64, kind uint8, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hdr [segmentHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], seq)
	hdr[8] = kind
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(len(body)))

	if _, err := s.gz.Write(hdr[:]); err != nil {
		return fmt.Errorf("auditsink: write segment header: %w", err)
	}
	if _, err := s.gz.Write(body); err != nil {
		return fmt.Errorf("auditsink: write segment body: %w", err)
	}
	return nil
}

// Gap appends a zero-body record tagged with kind 0, a sentinel no real
// audit.Kind uses, carrying skipped in place of a sequence number so a
// reader can distinguish it from a true Record when replaying the segment.
func (s *FileSink) Gap(skipped uint64) error {
	return s.Record(skipped, 0, nil)
}

// Flush forces buffered, compressed bytes to the underlying file without
// closing the writer, so a periodic flusher can bound how far behind disk
// the in-memory gzip buffer gets.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gz.Flush()
}

// Close finalizes the gzip stream and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gz.Close(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

var _ io.Closer = (*FileSink)(nil)
