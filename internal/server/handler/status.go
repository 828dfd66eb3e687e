package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
)

// CursorReader returns the committed indexer cursor.
type CursorReader interface {
	Cursor(ctx context.Context) (domain.Cursor, error)
}

// PipelineStatus is the view of a locally running ingestor.
type PipelineStatus interface {
	Head() uint64
	Lag() uint64
	Leader() bool
	IndexerStatus() indexer.Status
}

// LockHolder reports the current owner of the writer lock.
type LockHolder interface {
	LockHolder(ctx context.Context) (string, error)
}

// StatusHandler serves the indexer status. pipeline and locks may be nil,
// as in server-only mode.
type StatusHandler struct {
	mode     string
	cursor   CursorReader
	pipeline PipelineStatus
	locks    LockHolder
	logger   *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, cursor CursorReader, pipeline PipelineStatus, locks LockHolder, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, cursor: cursor, pipeline: pipeline, locks: locks, logger: logger}
}

type statusResponse struct {
	Mode       string          `json:"mode"`
	Cursor     *domain.Cursor  `json:"cursor"`
	Head       *uint64         `json:"head,omitempty"`
	Lag        *uint64         `json:"lag,omitempty"`
	Leader     *bool           `json:"leader,omitempty"`
	LockHolder string          `json:"lockHolder,omitempty"`
	Indexer    *indexer.Status `json:"indexer,omitempty"`
}

// GetStatus responds with the committed cursor, sync lag and lock holder.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Mode: h.mode}

	c, err := h.cursor.Cursor(r.Context())
	switch {
	case err == nil:
		resp.Cursor = &c
	case !errors.Is(err, domain.ErrNotFound):
		writeServiceError(w, r, h.logger, err, "failed to read cursor")
		return
	}

	if h.pipeline != nil {
		head, lag, leader := h.pipeline.Head(), h.pipeline.Lag(), h.pipeline.Leader()
		st := h.pipeline.IndexerStatus()
		resp.Head, resp.Lag, resp.Leader, resp.Indexer = &head, &lag, &leader, &st
	}

	if h.locks != nil {
		holder, err := h.locks.LockHolder(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "lock holder lookup failed", slog.String("error", err.Error()))
		}
		resp.LockHolder = holder
	}

	writeJSON(w, http.StatusOK, resp)
}
