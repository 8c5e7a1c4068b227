// Package middleware instruments the HTTP surface with logging, metrics and
// tracing.
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smaller-world/happytown.life/internal/metrics"
	"github.com/smaller-world/happytown.life/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Observability wraps handlers with request logging, a server span and
// request/response metrics.
func Observability(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracing.StartSpan(r.Context(), "http_request",
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.String("client.address", ClientIP(r)),
			)
			defer span.End()
			r = r.WithContext(ctx)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			metrics.IncrementCounter("http_requests_total", map[string]string{
				"method":   r.Method,
				"endpoint": r.URL.Path,
			})

			next.ServeHTTP(wrapper, r)

			duration := time.Since(start)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.request.duration_ms", duration.Milliseconds()),
			)
			if wrapper.statusCode >= 400 {
				tracing.RecordError(ctx, fmt.Errorf("HTTP %d", wrapper.statusCode))
			}

			metrics.RecordTimer("http_request_duration", duration, map[string]string{
				"method":      r.Method,
				"endpoint":    r.URL.Path,
				"status_code": status,
			})

			level := logrus.InfoLevel
			switch {
			case wrapper.statusCode >= 500:
				level = logrus.ErrorLevel
			case wrapper.statusCode >= 400:
				level = logrus.WarnLevel
			}
			logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"url":         r.URL.Path,
				"status_code": wrapper.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_ip":   ClientIP(r),
				"trace_id":    tracing.TraceID(ctx),
			}).Log(level, "HTTP request completed")
		})
	}
}

// responseWrapper captures the status code written by a handler.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// ClientIP extracts the originating client address, honoring the standard
// proxy headers.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
