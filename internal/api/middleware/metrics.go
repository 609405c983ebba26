package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsMiddleware instruments HTTP requests against the shared
// Registry's APIRequestDuration histogram, labelled by method, a
// normalized route, and status.
func MetricsMiddleware(duration *prometheus.HistogramVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := normalizeRoute(r.URL.Path)

			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).
				Observe(time.Since(start).Seconds())
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizeRoute collapses monitor IDs out of the path so the route
// label stays low-cardinality, e.g. /api/monitors/abc123/history
// becomes /api/monitors/:id/history.
func normalizeRoute(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if i > 0 && segments[i-1] == "monitors" && seg != "status" {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}
