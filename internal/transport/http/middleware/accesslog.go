package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	pkgctx "github.com/baechuer/newsroom/internal/pkg/context"
)

func AccessLog(lg zerolog.Logger) func(http.Handler) http.Handler {
	lg = lg.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(sw, r)

			ev := lg.Info()
			if sw.code() >= http.StatusInternalServerError {
				ev = lg.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.code()).
				Int("bytes", sw.bytes).
				Dur("latency", time.Since(start)).
				Str("remote_ip", r.RemoteAddr).
				Str("request_id", pkgctx.GetRequestID(r.Context())).
				Msg("http_request")
		})
	}
}
