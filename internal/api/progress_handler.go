package api

import (
	"net/http"

	"github.com/phrazzld/scry-deckgen/internal/api/shared"
	"github.com/phrazzld/scry-deckgen/internal/monitor"
)

// ProgressSource provides the latest progress snapshot
type ProgressSource interface {
	Snapshot() monitor.Snapshot
}

// RateSource reports the request ceiling in force
type RateSource interface {
	Rate() float64
}

// ProgressResponse is the body of GET /progress
type ProgressResponse struct {
	monitor.Snapshot
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// ProgressHandler serves progress snapshots.
type ProgressHandler struct {
	progress ProgressSource
	rate     RateSource
}

// NewProgressHandler creates a handler; rate may be nil.
func NewProgressHandler(progress ProgressSource, rate RateSource) *ProgressHandler {
	return &ProgressHandler{progress: progress, rate: rate}
}

// GetProgress handles GET /progress
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "progress monitor is not running")
		return
	}

	resp := ProgressResponse{Snapshot: h.progress.Snapshot()}
	if h.rate != nil {
		resp.RequestsPerSecond = h.rate.Rate()
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
