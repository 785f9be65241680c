package middleware

import (
	"net/http"

	"github.com/unionsquare/core/internal/reqctx"
)

// Handler is the internal chain's request signature. Unlike http.Handler it
// returns an error instead of writing a terminal response directly, so that
// every layer except ErrorShaping can stay ignorant of status codes and
// response bodies -- it only has to classify what went wrong.
type Handler func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error

// Layer wraps a Handler to produce a new Handler, the same shape every
// functional-middleware stack in the pack uses (rate-limiter/gateway's
// http.Handler-returning constructors, generalized to our error-returning
// Handler).
type Layer func(next Handler) Handler

// Build composes layers around terminal so that layers[0] runs outermost.
// Per spec.md §4.6's design note, ErrorShaping must always be layers[0]: it
// is the boundary that adapts this internal chain into a real http.Handler,
// so nothing above it in the call stack can intercept what it catches.
func Build(terminal Handler, layers ...Layer) Handler {
	h := terminal
	for i := len(layers) - 1; i >= 0; i-- {
		h = layers[i](h)
	}
	return h
}
