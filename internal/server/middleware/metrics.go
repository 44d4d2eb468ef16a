package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/trailtrack/licensed/internal/metrics"
)

// Metrics records request counts, latency, and in-flight requests against
// the given registry. The route label is the chi pattern, resolved after the
// handler has run.
func Metrics(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg.HTTPRequestsInFlight.Inc()
			defer reg.HTTPRequestsInFlight.Dec()

			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			reg.RecordHTTPRequest(r.Method, routePattern(r), strconv.Itoa(ww.status), time.Since(start))
		})
	}
}
