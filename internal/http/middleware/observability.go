package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"sda-commons/internal/http/httperr"
	"sda-commons/internal/observability/logger"
	"sda-commons/internal/requestctx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ContextCapture captures the configured trace headers of every inbound
// request into holder for the lifetime of the request.
//   - Reads X-Request-Id, generates one if missing
//   - Echoes X-Request-Id on the response
//   - Clears the captured headers once the handler returns
func ContextCapture(holder *requestctx.Holder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(requestctx.HeaderRequestID))
			if reqID == "" {
				reqID = requestctx.NewRequestID()
			}

			ctx := holder.Capture(r.Context(), reqID, r.Header)
			defer holder.Clear(ctx)

			w.Header().Set(requestctx.HeaderRequestID, reqID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrorMapping registers mapper on the request context so handlers written as
// httperr.HandlerFunc report failures in the uniform error body.
func ErrorMapping(mapper *httperr.Mapper) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(httperr.WithMapper(r.Context(), mapper)))
		})
	}
}

// RequestLoggingMiddleware logs every request once it has completed.
// Headers and bodies are never logged.
func RequestLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logger.WithLogger(r.Context(), log)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			r = r.WithContext(ctx)

			next.ServeHTTP(wrapped, r)

			latencyMs := float64(time.Since(start).Microseconds()) / 1000

			fields := []zap.Field{
				logger.Module("http"),
				logger.Action("request"),
				zap.String("method", r.Method),
				zap.String("route", routePattern(r)),
				zap.String("path", r.URL.Path),
				zap.String("query", sanitizeQuery(r.URL.RawQuery)),
				zap.Int("status", wrapped.statusCode),
				zap.Float64("latency_ms", latencyMs),
				zap.String("remote_addr", sanitizeRemoteAddr(r.RemoteAddr)),
				zap.String("user_agent", sanitizeUserAgent(r.UserAgent())),
			}

			if wrapped.statusCode >= 500 {
				log.Warn(ctx, "http request completed", fields...)
				return
			}
			log.Info(ctx, "http request completed", fields...)
		})
	}
}

// RecoveryMiddleware recovers from panics, logs the stack trace and answers
// with the standard 500 body.
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error(
					r.Context(),
					"panic_recovered",
					logger.Module("http"),
					logger.Action("panic_recovery"),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", routePattern(r)),
				)

				httperr.WriteError(w, r, fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var sensitiveQueryKeys = []string{"token", "access_token", "api_key", "apikey", "password", "secret", "signature"}

// sanitizeQuery redacts sensitive query parameters and truncates long queries
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "[unparseable]"
	}
	for key := range values {
		lower := strings.ToLower(key)
		for _, s := range sensitiveQueryKeys {
			if strings.Contains(lower, s) {
				values.Set(key, "[REDACTED]")
				break
			}
		}
	}

	const maxLen = 200
	out := values.Encode()
	if len(out) > maxLen {
		return out[:maxLen] + "..."
	}
	return out
}

// sanitizeRemoteAddr removes port from remote address
// Example: 192.168.1.100:54321 -> 192.168.1.100
func sanitizeRemoteAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// sanitizeUserAgent truncates user agent to prevent log bloat
func sanitizeUserAgent(ua string) string {
	const maxLen = 100
	if len(ua) > maxLen {
		return ua[:maxLen] + "..."
	}
	return ua
}

// routePattern extracts the chi route pattern from request context
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
