package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error)
	ListBets(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Bet, error)
	ListEvents(ctx context.Context, id string, opts domain.ListOpts) ([]domain.MarketEvent, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListMarkets returns markets, newest first.
// GET /api/markets?status=&category=&creator=&limit=&offset=
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := domain.MarketFilter{
		Status:   domain.MarketStatus(q.Get("status")),
		Category: q.Get("category"),
		Creator:  q.Get("creator"),
	}

	markets, err := h.markets.ListMarkets(r.Context(), filter, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list markets")
		return
	}
	writeJSON(w, http.StatusOK, newPage(markets, opts))
}

// GetMarket returns a single market by contract address.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.markets.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// ListBets returns the bets placed on a market, newest first.
// GET /api/markets/{id}/bets
func (h *MarketHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bets, err := h.markets.ListBets(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list bets")
		return
	}
	writeJSON(w, http.StatusOK, newPage(bets, opts))
}

// ListEvents returns the creation and resolution records of a market.
// GET /api/markets/{id}/events
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.markets.ListEvents(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list market events")
		return
	}
	writeJSON(w, http.StatusOK, newPage(events, opts))
}
