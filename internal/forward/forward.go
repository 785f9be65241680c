// Package forward implements the Forwarder (spec.md §4.7): the terminal
// middleware layer that streams a request body upstream and streams the
// upstream response back to the client, emitting BodyChunk and
// ResponseReceived audit events as it goes.
//
// It never buffers a full body. Both directions copy through a small
// fixed-size transfer buffer, the same bounded-memory idiom thushan-olla's
// streaming proxy and sofatutor-llm-proxy's captureResponseWriter use, so a
// large response completes in bounded additional memory regardless of its
// total size.
package forward

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/middleware"
	"github.com/unionsquare/core/internal/reqctx"
)

// transferBufSize is the fixed chunk size used for both request and
// response streaming. It is not configurable: spec.md §4.7 only requires a
// small fixed-size buffer, not a tunable one.
const transferBufSize = 32 * 1024

// Forwarder performs the upstream call for every request that reaches the
// terminal layer of the middleware chain.
type Forwarder struct {
	client *http.Client
}

// New creates a Forwarder. The timeout argument is not applied to the
// client: the upstream round trip is bounded only by the per-request
// context deadline that Dispatcher sets on r.Context().
func New(timeout time.Duration) *Forwarder {
	return &Forwarder{
		client: &http.Client{
			// No Timeout field set here: the request's context deadline
			// (set by Dispatcher from reqctx.Context.Deadline) is what
			// actually bounds the call, matching spec.md §4.7's "honors
			// the context deadline" rather than a second, independent
			// clock.
			Timeout: 0,
		},
	}
}

// Handler adapts the Forwarder into the chain's terminal Handler.
// rc.UpstreamTarget is the resolved upstream URL (scheme+host+path+query);
// Dispatcher resolves it from the configured upstream_base_url plus the
// incoming request's path before calling this.
func (f *Forwarder) Handler() middleware.Handler {
	return func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		return f.forward(w, r, rc, pub)
	}
}

// Publisher is a local alias so this file reads without importing
// middleware.Publisher under two names; it is the exact same type.
type Publisher = middleware.Publisher

func (f *Forwarder) forward(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
	upstreamURL := rc.UpstreamTarget
	if upstreamURL == nil {
		return &middleware.TaxonomyError{Kind: middleware.Internal, Err: errNoUpstreamTarget}
	}

	// The request body is streamed to the upstream through a pipe instead of
	// being handed over by reference: f.stream is what chunks it, checksums
	// each chunk, and publishes the BodyChunk{up,...} events spec.md §4.7
	// requires in both directions, not just downstream.
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(f.stream(r.Body, pw, rc, pub, audit.DirectionUp))
	}()

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL.String(), pr)
	if err != nil {
		return &middleware.TaxonomyError{Kind: middleware.Internal, Err: err}
	}
	req.ContentLength = r.ContentLength
	req.Header = r.Header.Clone()

	startedAt := time.Now()
	pub.Publish(&audit.ForwardStarted{
		RequestID:      [16]byte(rc.RequestID),
		UpstreamTarget: upstreamURL.String(),
		StartedAt:      rc.ReceivedAtWall,
	})

	resp, err := f.client.Do(req)
	if err != nil {
		if r.Context().Err() != nil {
			return &middleware.TaxonomyError{Kind: middleware.UpstreamTimeout, Err: err}
		}
		return &middleware.TaxonomyError{Kind: middleware.UpstreamUnavailable, Err: err}
	}
	defer resp.Body.Close()

	var hs []audit.Header
	for name, vals := range resp.Header {
		if len(vals) == 0 {
			continue
		}
		hs = append(hs, audit.Header{Name: name, Value: vals[0]})
	}
	pub.Publish(&audit.ResponseReceived{
		RequestID: [16]byte(rc.RequestID),
		Status:    int32(resp.StatusCode),
		Headers:   hs,
		LatencyNs: time.Since(startedAt).Nanoseconds(),
	})

	for name, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(name, v)
		}
	}
	// Headers must be set on the response writer before WriteHeader is
	// called; net/http ignores header mutations made afterward.
	w.WriteHeader(resp.StatusCode)
	// Stored as the numeric status text, matching middleware.ErrorShaping's
	// convention, since LoggingLayer's exit line parses this back with
	// strconv.Atoi for its Status field.
	rc.TerminalStatus = strconv.Itoa(resp.StatusCode)

	if err := f.stream(resp.Body, w, rc, pub, audit.DirectionDown); err != nil {
		return &middleware.TaxonomyError{Kind: middleware.UpstreamUnavailable, Err: err}
	}
	return nil
}

// stream copies src to dst transferBufSize bytes at a time, publishing one
// BodyChunk event per chunk with its length and a rolling xxhash checksum
// (spec.md §3, §4.7). It never accumulates the full body in memory.
func (f *Forwarder) stream(src io.Reader, dst io.Writer, rc *reqctx.Context, pub *Publisher, dir audit.Direction) error {
	buf := make([]byte, transferBufSize)
	var offset int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := dst.Write(chunk); err != nil {
				return err
			}

			pub.Publish(&audit.BodyChunk{
				RequestID: [16]byte(rc.RequestID),
				Direction: dir,
				Offset:    offset,
				Length:    int32(n),
				Checksum:  audit.Checksum(chunk),
			})

			offset += int64(n)
			if dir == audit.DirectionDown {
				rc.BytesOut += int64(n)
			} else {
				rc.BytesIn += int64(n)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

var errNoUpstreamTarget = forwardError("forward: request context has no resolved upstream target")

type forwardError string

func (e forwardError) Error() string { return string(e) }
