package middleware

import (
	"net/http"
	"strconv"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/ratelimit"
	"github.com/unionsquare/core/internal/reqctx"
)

// RateLimitLayer enforces the per-principal token bucket (spec.md §4.6 item
// 3). It only publishes on denial: an allowed request produces no audit
// event here, since spec.md §6 defines no sampling knob for this layer and
// every allow would otherwise double the event volume of RequestReceived
// for no new information.
func RateLimitLayer(limiter *ratelimit.Limiter) Layer {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
			res := limiter.Allow(rc.ClientPrincipal)
			if res.Allowed {
				return next(w, r, rc, pub)
			}

			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.5)))
			pub.Publish(&audit.RateLimitDecision{
				RequestID:  [16]byte(rc.RequestID),
				Outcome:    audit.RateLimitDeny,
				TokenCount: res.Remaining,
			})
			return &TaxonomyError{Kind: RateLimited}
		}
	}
}
