package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// Triggerer starts an immediate re-sync without blocking.
type Triggerer interface {
	Trigger()
}

// PipelineHandler serves the manual re-sync endpoint.
type PipelineHandler struct {
	trigger Triggerer
	logger  *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler. A nil trigger makes the
// endpoint answer 503, as in server-only mode.
func NewPipelineHandler(trigger Triggerer, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{trigger: trigger, logger: logger}
}

// TriggerPipeline asks the ingestor to poll now. Repeated calls before the
// loop wakes up coalesce into one poll.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer not running in this process")
		return
	}
	h.logger.InfoContext(r.Context(), "pipeline trigger requested")
	h.trigger.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
