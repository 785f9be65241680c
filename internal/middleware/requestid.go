package middleware

import (
	"net/http"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/reqctx"
)

// whitelistedHeaders are the only request headers RequestReceived ever
// captures; audit records are not a place to accidentally mirror
// Authorization or cookies into a durable log (spec.md §4.2's Header list is
// deliberately small).
var whitelistedHeaders = []string{"Content-Type", "User-Agent", "Accept"}

// RequestIDLayer is the entry layer of spec.md §4.6: it adopts or mints the
// request's correlation id, stamps it on the response, and is the single
// place that publishes RequestReceived.
func RequestIDLayer(headerName string) Layer {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
			if id, adopted := reqctx.ParseID(r.Header.Get(headerName)); adopted {
				rc.RequestID = id
			}
			w.Header().Set(headerName, rc.RequestID.String())

			var hs []audit.Header
			for _, name := range whitelistedHeaders {
				if v := r.Header.Get(name); v != "" {
					hs = append(hs, audit.Header{Name: name, Value: v})
				}
			}

			pub.Publish(&audit.RequestReceived{
				RequestID:  [16]byte(rc.RequestID),
				Method:     r.Method,
				Path:       r.URL.Path,
				Headers:    hs,
				ReceivedAt: rc.ReceivedAtWall,
			})

			return next(w, r, rc, pub)
		}
	}
}
