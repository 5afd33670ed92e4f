// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/movers/pkg/metrics"
)

// requestTimeout bounds every store call made on behalf of one request.
const requestTimeout = 5 * time.Second

// MetricsMiddleware records request counts and durations per endpoint and
// counts failed requests by the error code written in the body.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(rw, r.WithContext(ctx))

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		status := strconv.Itoa(rw.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)

		if rw.statusCode >= http.StatusBadRequest {
			code := rw.errCode
			if code == "" {
				code = fallbackCode(rw.statusCode)
			}
			metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
		}
	}
}

// fallbackCode labels errors not written through writeError, such as
// http.MaxBytesReader or mux-level rejections.
func fallbackCode(status int) string {
	if status >= http.StatusInternalServerError {
		return "internal"
	}
	return "client_error"
}

// responseWriter captures the status and the error code of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	errCode    string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// noteError is called by writeError before the body goes out.
func noteError(w http.ResponseWriter, code string) {
	if rw, ok := w.(*responseWriter); ok {
		rw.errCode = code
	}
}
