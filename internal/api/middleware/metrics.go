package middleware

import (
	"net/http"
	"sync/atomic"
)

// Counters is the request tally behind /metrics.
type Counters struct {
	Requests     atomic.Int64
	ClientErrors atomic.Int64
	ServerErrors atomic.Int64
	RateLimited  atomic.Int64
}

// MetricsCollector counts requests by outcome.
type MetricsCollector struct {
	counters *Counters
}

func NewMetricsCollector(c *Counters) *MetricsCollector {
	return &MetricsCollector{counters: c}
}

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.counters.Requests.Add(1)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		switch {
		case rw.status == http.StatusTooManyRequests:
			mc.counters.RateLimited.Add(1)
		case rw.status >= http.StatusInternalServerError:
			mc.counters.ServerErrors.Add(1)
		case rw.status >= http.StatusBadRequest:
			mc.counters.ClientErrors.Add(1)
		}
	})
}
