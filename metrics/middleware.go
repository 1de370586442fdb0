package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMetricsMiddleware records the status and latency of every request
// served under route.
func HTTPMetricsMiddleware(collector *Collector, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			collector.ObserveHTTP(route, wrapped.statusCode, time.Since(start))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// ParseRateLimitHeaders reads the SmartThings X-RateLimit-* headers. It
// returns nil unless all three are present and numeric. The reset header is
// in milliseconds.
func ParseRateLimitHeaders(headers http.Header) *RateLimitInfo {
	var values [3]int64
	for i, name := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		v, err := strconv.ParseInt(strings.TrimSpace(headers.Get(name)), 10, 64)
		if err != nil || v < 0 {
			return nil
		}
		values[i] = v
	}
	return &RateLimitInfo{
		Limit:     int(values[0]),
		Remaining: int(values[1]),
		Reset:     time.Duration(values[2]) * time.Millisecond,
	}
}
