package reqlog

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolhttpd",
		Name:      "requests_total",
		Help:      "Requests handled, by method and response code",
	}, []string{"method", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poolhttpd",
		Name:      "request_duration_seconds",
		Help:      "Time from receiving the request headers to the handler returning",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	postBodyBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "poolhttpd",
		Name:      "post_body_bytes",
		Help:      "Size of logged POST bodies",
		Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
	})

	malformedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolhttpd",
		Name:      "malformed_requests_total",
		Help:      "Requests rejected before logging, by reason",
	}, []string{"reason"})
)

// methodLabel keeps the method label bounded no matter what clients send.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost:
		return method
	default:
		return "other"
	}
}

// WithMetrics records request count, status code and latency for next.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		method := methodLabel(r.Method)
		requestsTotal.WithLabelValues(method, strconv.Itoa(m.Code)).Inc()
		requestDuration.WithLabelValues(method).Observe(m.Duration.Seconds())
	})
}
