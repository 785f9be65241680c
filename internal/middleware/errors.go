package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/reqctx"
)

// ErrorKind is the small client-visible error taxonomy of spec.md §7. Layers
// never write HTTP responses themselves; they return a TaxonomyError and let
// ErrorShaping -- the outermost layer -- decide what the client sees.
type ErrorKind uint8

const (
	BadRequest ErrorKind = iota + 1
	Unauthenticated
	RateLimited
	UpstreamTimeout
	UpstreamUnavailable
	Internal
)

// StatusCode maps a Kind to the HTTP status spec.md §7's table assigns it.
func (k ErrorKind) StatusCode() int {
	switch k {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	case UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// TaxonomyError is the only error type layers in this package return up the
// chain. It carries no audit payload of its own -- ErrorShaping publishes the
// audit.Error record for it when it reaches the outermost layer.
type TaxonomyError struct {
	Kind ErrorKind
	Err  error
}

func (e *TaxonomyError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *TaxonomyError) Unwrap() error { return e.Err }

// ErrorShaping is the outermost Layer (spec.md §4.6's design note: error
// shaping wraps everything else). It is the only layer that writes to
// http.ResponseWriter directly: every inner layer and the Forwarder signal
// failure by returning a *TaxonomyError instead.
//
// On a non-nil, non-TaxonomyError it shapes the response as Internal rather
// than leaking whatever the underlying error was, and still publishes an
// audit.Error so the failure is visible in the trail even though the client
// only sees a generic 500.
func ErrorShaping(next Handler) Handler {
	return func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		err := next(w, r, rc, pub)
		if err == nil {
			return nil
		}

		var te *TaxonomyError
		if !errors.As(err, &te) {
			te = &TaxonomyError{Kind: Internal, Err: err}
		}

		status := te.Kind.StatusCode()
		rc.TerminalStatus = strconv.Itoa(status)

		pub.Publish(&audit.Error{
			RequestID: [16]byte(rc.RequestID),
			Category:  errorCategoryFor(te.Kind),
			Message:   te.Error(),
		})

		w.WriteHeader(status)
		return nil
	}
}

func errorCategoryFor(k ErrorKind) audit.ErrorCategory {
	switch k {
	case BadRequest:
		return audit.ErrorBadRequest
	case Unauthenticated:
		return audit.ErrorUnauthenticated
	case RateLimited:
		return audit.ErrorRateLimited
	case UpstreamTimeout:
		return audit.ErrorUpstreamTimeout
	case UpstreamUnavailable:
		return audit.ErrorUpstreamUnavailable
	default:
		return audit.ErrorInternal
	}
}

func (k ErrorKind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Unauthenticated:
		return "unauthenticated"
	case RateLimited:
		return "rate_limited"
	case UpstreamTimeout:
		return "upstream_timeout"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}
