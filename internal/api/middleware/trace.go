package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/scry-deckgen/internal/api/shared"
	"github.com/phrazzld/scry-deckgen/internal/platform/logger"
)

// NewTraceMiddleware adds a trace ID to the request context and a request
// logger carrying it. Apply it early so later handlers can use both.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			log := base.With(slog.String("trace_id", shared.GetTraceID(ctx)))
			ctx = logger.WithLogger(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
