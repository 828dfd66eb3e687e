package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// StatsService is the read side of platform counters.
type StatsService interface {
	Global(ctx context.Context) (domain.GlobalStats, error)
	Daily(ctx context.Context, days int) ([]domain.DailyStats, error)
}

// StatsHandler serves platform statistics.
type StatsHandler struct {
	stats  StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// Global returns platform totals.
// GET /api/stats
func (h *StatsHandler) Global(w http.ResponseWriter, r *http.Request) {
	g, err := h.stats.Global(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Daily returns day buckets, newest first.
// GET /api/stats/daily?days=
func (h *StatsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.stats.Daily(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get daily stats")
		return
	}
	if out == nil {
		out = []domain.DailyStats{}
	}
	writeJSON(w, http.StatusOK, out)
}
