package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// UserService is the read side of per-address aggregates.
type UserService interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListPositions(ctx context.Context, id string, unclaimedOnly bool, opts domain.ListOpts) ([]domain.PositionView, error)
	ListBets(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Bet, error)
	Leaderboard(ctx context.Context, by string, opts domain.ListOpts) ([]domain.User, error)
}

// UserHandler serves user and leaderboard endpoints.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// GetUser returns the aggregate of one address.
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListPositions returns a user's positions with their markets.
// GET /api/users/{id}/positions?unclaimed=true
func (h *UserHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unclaimed, err := queryBool(r, "unclaimed")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	views, err := h.users.ListPositions(r.Context(), r.PathValue("id"), unclaimed, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list positions")
		return
	}
	writeJSON(w, http.StatusOK, newPage(views, opts))
}

// ListBets returns a user's bets, newest first.
// GET /api/users/{id}/bets
func (h *UserHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bets, err := h.users.ListBets(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list bets")
		return
	}
	writeJSON(w, http.StatusOK, newPage(bets, opts))
}

// Leaderboard ranks bettors.
// GET /api/leaderboard?by=pnl|wins|volume
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	users, err := h.users.Leaderboard(r.Context(), r.URL.Query().Get("by"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to build leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, newPage(users, opts))
}
