// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/streamgrab/internal/log"
)

// Logging writes one structured access log line per request.
// Server errors log at error level, client errors at warn, the rest at debug.
func Logging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			logger := xglog.WithComponentFromContext(r.Context(), "http")
			ev := logger.Debug()
			switch {
			case sw.statusCode >= 500:
				ev = logger.Error()
			case sw.statusCode >= 400:
				ev = logger.Warn()
			}
			ev.Str(xglog.FieldEvent, "http.request").
				Str("method", r.Method).
				Str(xglog.FieldPath, r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", sw.statusCode).
				Int("bytes", sw.bytesWritten).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request served")
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
