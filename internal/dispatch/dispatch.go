// Package dispatch implements the Dispatcher (spec.md §4.8): the entry
// point that binds an accepted HTTP request to a Request Context, drives
// the middleware chain, and guarantees exactly one RequestCompleted audit
// event on every exit path, whatever that path turns out to be.
package dispatch

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/middleware"
	"github.com/unionsquare/core/internal/reqctx"
	"github.com/unionsquare/core/internal/ringbuf"
)

// Dispatcher wires the resolved middleware chain to an HTTP server using
// gorilla/mux for routing, the router the pack's grafana-tempo frontend
// already depends on.
type Dispatcher struct {
	chain           middleware.Handler
	ring            *ringbuf.Buffer
	upstreamBase    *url.URL
	requestIDHeader string
	requestTimeout  time.Duration
	log             *zap.Logger
}

// Config carries the pieces of spec.md §6 the Dispatcher itself needs to
// resolve an upstream target and bound a request.
type Config struct {
	UpstreamBaseURL *url.URL
	RequestIDHeader string
	RequestTimeout  time.Duration
}

// New builds a Dispatcher. chain must already be fully composed with
// middleware.ErrorShaping as its outermost layer -- Build's contract, not
// re-checked here, since the Dispatcher only calls it, it does not compose
// it. ring is shared by every request; a fresh middleware.Publisher is
// built for each one (see handle) since Publisher's scratch encode buffer
// is not safe for concurrent use across the goroutines net/http spins up
// per request.
func New(chain middleware.Handler, ring *ringbuf.Buffer, cfg Config, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		chain:           chain,
		ring:            ring,
		upstreamBase:    cfg.UpstreamBaseURL,
		requestIDHeader: cfg.RequestIDHeader,
		requestTimeout:  cfg.RequestTimeout,
		log:             log,
	}
}

// Router returns an http.Handler registered against a single catch-all
// route; spec.md §6's ingress surface is "accepts client requests", not a
// per-endpoint API, so one mux.Router route is enough to get gorilla/mux's
// path/query parsing and method matching without inventing an API surface
// the spec never describes.
func (d *Dispatcher) Router() http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(d.handle)
	return r
}

func (d *Dispatcher) handle(w http.ResponseWriter, r *http.Request) {
	id, _ := reqctx.ParseID(r.Header.Get(d.requestIDHeader))
	rc := reqctx.New(id, d.requestTimeout)
	rc.UpstreamTarget = d.resolveUpstream(r)

	// One Publisher per request: its scratch encode buffer is reused across
	// that Publisher's own calls, so sharing one across concurrently
	// handled requests would tear bytes between two different requests'
	// encoded events (spec.md §3's "Request Context... exclusively owned
	// by the task handling it" applies just as much to its Publisher).
	pub := middleware.NewPublisher(d.ring)

	ctx := r.Context()
	if rc.HasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, rc.Deadline)
		defer cancel()
	}
	r = r.WithContext(ctx)

	terminalStatus := "client_abort"
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("dispatch: recovered panic in handler chain",
				zap.String("request_id", rc.RequestID.String()),
				zap.Any("panic", rec),
			)
			terminalStatus = "internal_panic"
		}
		if rc.TerminalStatus != "" {
			terminalStatus = rc.TerminalStatus
		}
		pub.Publish(&audit.RequestCompleted{
			RequestID:      [16]byte(rc.RequestID),
			TerminalStatus: terminalStatus,
			TotalLatencyNs: rc.Elapsed().Nanoseconds(),
		})
	}()

	if err := d.chain(w, r, rc, pub); err != nil {
		// The composed chain's outermost layer is ErrorShaping, which
		// never returns a non-nil error itself; reaching here means chain
		// was built without it, which is a wiring bug, not a request
		// failure. Report it the same way a panic would be reported.
		d.log.Error("dispatch: handler chain returned an error past ErrorShaping",
			zap.String("request_id", rc.RequestID.String()),
			zap.Error(err),
		)
		terminalStatus = strconv.Itoa(http.StatusInternalServerError)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// resolveUpstream builds the per-request upstream URL from the configured
// base plus the incoming request's path and query, per spec.md §6's
// "request path, method, query string ... are passed through".
func (d *Dispatcher) resolveUpstream(r *http.Request) *url.URL {
	if d.upstreamBase == nil {
		return nil
	}
	target := *d.upstreamBase
	target.Path = singleJoiningSlash(d.upstreamBase.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery
	return &target
}

func singleJoiningSlash(a, b string) string {
	aslash := len(a) > 0 && a[len(a)-1] == '/'
	bslash := len(b) > 0 && b[0] == '/'
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	default:
		return a + b
	}
}
