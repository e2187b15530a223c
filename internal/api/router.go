package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/scry-deckgen/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds what the HTTP handlers read from
type RouterDeps struct {
	Progress ProgressSource

	// Rate is optional; when set /progress reports the current request ceiling
	Rate RateSource

	// Gatherer serves /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewRouter creates the router with every operational route.
func NewRouter(deps RouterDeps) http.Handler {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(deps.Logger))

	progress := NewProgressHandler(deps.Progress, deps.Rate)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			deps.Logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Get("/progress", progress.GetProgress)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
