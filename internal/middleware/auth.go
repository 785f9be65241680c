package middleware

import (
	"net/http"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/authstore"
	"github.com/unionsquare/core/internal/reqctx"
)

// AuthLayer resolves the credential carried in headerName against store and
// publishes exactly one AuthDecision (spec.md §4.6 item 2). A rejection
// short-circuits the chain with a TaxonomyError; ErrorShaping, being
// outermost, is what turns that into a 401.
//
// spec.md §8 names a fourth "malformed-header" testable outcome that
// internal/audit's three-valued AuthOutcome has no slot for; it is folded
// into AuthRejectInvalidKey here, since both end up as the same client-
// visible rejection and the data model doesn't distinguish them.
func AuthLayer(headerName string, store *authstore.Store) Layer {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
			credential := r.Header.Get(headerName)
			if credential == "" {
				pub.Publish(&audit.AuthDecision{
					RequestID: [16]byte(rc.RequestID),
					Outcome:   audit.AuthRejectMissingKey,
				})
				return &TaxonomyError{Kind: Unauthenticated}
			}

			principal, ok := store.Lookup(credential)
			if !ok {
				pub.Publish(&audit.AuthDecision{
					RequestID: [16]byte(rc.RequestID),
					Outcome:   audit.AuthRejectInvalidKey,
				})
				return &TaxonomyError{Kind: Unauthenticated}
			}

			rc.ClientPrincipal = principal
			pub.Publish(&audit.AuthDecision{
				RequestID: [16]byte(rc.RequestID),
				Outcome:   audit.AuthAccept,
				Principal: principal,
			})

			return next(w, r, rc, pub)
		}
	}
}
