package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/hlog"

	"github.com/snarg/transcribe-etl/internal/etl"
)

// Pipeline runs one extract, transform and load pass.
type Pipeline interface {
	Run(ctx context.Context) (*etl.Report, error)
}

// RunsHandler triggers pipeline runs over HTTP. At most one run is in
// flight at a time.
type RunsHandler struct {
	pipeline Pipeline
	mu       sync.Mutex
}

func NewRunsHandler(p Pipeline) *RunsHandler {
	return &RunsHandler{pipeline: p}
}

// Create handles POST /api/v1/runs. The run is tied to the request, so a
// client disconnect cancels it.
func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.mu.TryLock() {
		WriteError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer h.mu.Unlock()

	report, err := h.pipeline.Run(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("pipeline run failed")
		WriteJSON(w, http.StatusInternalServerError, struct {
			ErrorResponse
			Report *etl.Report `json:"report,omitempty"`
		}{ErrorResponse{Error: "run failed", Detail: err.Error()}, report})
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
