package server

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// LoggingMiddleware wraps next with an http.Handler that logs every
// request's method, path, status, and duration, mirroring the
// teacher's LoggingInterceptor (internal/server/interceptors.go) but
// over net/http instead of a ConnectRPC unary interceptor (see
// DESIGN.md for why the RPC layer itself was replaced).
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
			}

			level := slog.LevelInfo
			if rec.status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}

// RecoveryMiddleware recovers from panics in next, logs the panic
// value and a stack trace at Error level, and returns 500 Internal
// Server Error to the client instead of crashing the daemon.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					logger.ErrorContext(r.Context(), "panic recovered in request handler",
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
						slog.String("stack", string(buf[:n])),
					)
					writeError(w, http.StatusInternalServerError, errPanicRecovered)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the status code written by the wrapped
// handler, since http.ResponseWriter doesn't expose it directly.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Chain applies middlewares to h in the order given, so
// Chain(h, Logging, Recovery) runs Logging(Recovery(h)) -- the first
// middleware listed sees the request first.
func Chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
