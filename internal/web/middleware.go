package web

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
)

// RequestLogger logs every request with its status and duration. Static
// assets and the WebSocket upgrade are logged at debug level only.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(h, w, r)
			level := slog.LevelInfo
			switch {
			case m.Code >= 500:
				level = slog.LevelWarn
			case strings.HasPrefix(r.URL.Path, "/static/"), r.URL.Path == "/ws":
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"bytes", m.Written,
				"took", m.Duration,
				"remote_host", r.RemoteAddr,
			)
		})
	}
}
