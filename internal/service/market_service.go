package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
)

// MarketService serves market lookups, reading through the market cache.
type MarketService struct {
	markets domain.MarketQuery
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(markets domain.MarketQuery, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// GetMarket retrieves a market by contract address, checking the cache first
// and falling back to the store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	id = indexer.NormalizeAddress(id)

	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets lists markets matching f. Status is matched case-insensitively
// against OPEN and RESOLVED.
func (s *MarketService) ListMarkets(ctx context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	if f.Status != "" {
		f.Status = domain.MarketStatus(strings.ToUpper(string(f.Status)))
		if f.Status != domain.MarketStatusOpen && f.Status != domain.MarketStatusResolved {
			return nil, fmt.Errorf("market_service: status %q: %w", f.Status, domain.ErrInvalidInput)
		}
	}
	f.Creator = indexer.NormalizeAddress(f.Creator)

	markets, err := s.markets.ListMarkets(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// ListBets returns the bets placed on a market, newest first.
func (s *MarketService) ListBets(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.markets.ListMarketBets(ctx, indexer.NormalizeAddress(id), opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list bets: %w", err)
	}
	return bets, nil
}

// ListEvents returns the lifecycle events of a market, newest first.
func (s *MarketService) ListEvents(ctx context.Context, id string, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	events, err := s.markets.ListMarketEvents(ctx, indexer.NormalizeAddress(id), opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list events: %w", err)
	}
	return events, nil
}
