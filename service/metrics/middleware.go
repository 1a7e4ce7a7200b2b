package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware records request counts and latency for one endpoint.
// handlerName must be a constant route identifier ("/api/v1/wallets"), never
// the raw request path, to keep label cardinality bounded.
func HTTPMetricsMiddleware(m *Metrics, handlerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			done := Timer(time.Now(), func(seconds float64) {
				if m != nil {
					m.RecordHTTPRequest(handlerName, r.Method, rec.status, seconds)
				}
			})
			next.ServeHTTP(rec, r)
			done()
		})
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Timer returns a function that, when called, reports the elapsed seconds
// since start to record. Usable inline or deferred:
//
//	defer metrics.Timer(time.Now(), func(seconds float64) {
//	    m.RecordDetectionCycle(wallet, status, seconds)
//	})()
func Timer(start time.Time, record func(seconds float64)) func() {
	return func() {
		record(time.Since(start).Seconds())
	}
}
