package middleware

import (
	"math/rand"
	"net/http"
	"strconv"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/reqctx"
)

// LoggingLayer publishes the structured entry and exit lines of spec.md
// §4.6 item 4 through the Publisher, sampled at sampleRate, instead of
// writing to a synchronous log sink on the hot path. sampleRate is
// evaluated once per request so a sampled-in request gets both its entry
// and exit line, never one without the other.
func LoggingLayer(sampleRate float64) Layer {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
			sampled := sampleRate >= 1 || rand.Float64() < sampleRate

			if sampled {
				pub.Publish(&audit.AccessLogLine{
					RequestID: [16]byte(rc.RequestID),
					Phase:     audit.LogPhaseEntry,
					Method:    r.Method,
					Path:      r.URL.Path,
				})
			}

			err := next(w, r, rc, pub)

			if sampled {
				status, _ := strconv.Atoi(rc.TerminalStatus)
				pub.Publish(&audit.AccessLogLine{
					RequestID: [16]byte(rc.RequestID),
					Phase:     audit.LogPhaseExit,
					Method:    r.Method,
					Path:      r.URL.Path,
					Status:    int32(status),
					LatencyNs: rc.Elapsed().Nanoseconds(),
				})
			}

			return err
		}
	}
}
