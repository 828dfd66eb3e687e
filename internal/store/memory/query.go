package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// GetMarket implements domain.MarketQuery.
func (s *Store) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return s.Market(ctx, id)
}

// ListMarkets implements domain.MarketQuery, newest first.
func (s *Store) ListMarkets(_ context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	var out []domain.Market
	for _, m := range s.markets {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if !matchFold(f.Category, m.Category) || !matchFold(f.Creator, m.Creator) {
			continue
		}
		out = append(out, m.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts), nil
}

// ListMarketBets implements domain.MarketQuery, newest first.
func (s *Store) ListMarketBets(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.filterBets(func(b domain.Bet) bool { return b.Market == marketID }, opts), nil
}

// ListMarketEvents implements domain.MarketQuery, newest first.
func (s *Store) ListMarketEvents(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	s.mu.RLock()
	var out []domain.MarketEvent
	for i := len(s.marketEvents) - 1; i >= 0; i-- {
		if s.marketEvents[i].Market == marketID {
			out = append(out, s.marketEvents[i])
		}
	}
	s.mu.RUnlock()
	return page(out, opts), nil
}

// GetUser implements domain.UserQuery.
func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.User(ctx, id)
}

// Leaderboard implements domain.UserQuery.
func (s *Store) Leaderboard(_ context.Context, by domain.LeaderboardOrder, opts domain.ListOpts) ([]domain.User, error) {
	s.mu.RLock()
	var out []domain.User
	for _, u := range s.users {
		if u.TotalBets > 0 {
			out = append(out, u.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		var c int
		switch by {
		case domain.LeaderboardByWins:
			c = cmpInt64(out[i].WinCount, out[j].WinCount)
		case domain.LeaderboardByVolume:
			c = out[i].TotalWagered.Cmp(out[j].TotalWagered)
		default:
			c = out[i].PnL.Cmp(out[j].PnL)
		}
		if c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts), nil
}

// ListUserPositions implements domain.UserQuery, newest first.
func (s *Store) ListUserPositions(_ context.Context, userID string, unclaimedOnly bool, opts domain.ListOpts) ([]domain.PositionView, error) {
	s.mu.RLock()
	var out []domain.PositionView
	for _, p := range s.positions {
		if p.User != userID || (unclaimedOnly && p.Claimed) {
			continue
		}
		out = append(out, domain.PositionView{Position: p.Clone(), MarketInfo: s.markets[p.Market].Clone()})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts), nil
}

// ListUserBets implements domain.UserQuery, newest first.
func (s *Store) ListUserBets(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.filterBets(func(b domain.Bet) bool { return b.User == userID }, opts), nil
}

// GetGlobalStats implements domain.StatsQuery.
func (s *Store) GetGlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	g, err := s.GlobalStats(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewGlobalStats(), nil
	}
	return g, err
}

// ListDailyStats implements domain.StatsQuery.
func (s *Store) ListDailyStats(_ context.Context, days int) ([]domain.DailyStats, error) {
	s.mu.RLock()
	out := make([]domain.DailyStats, 0, len(s.daily))
	for _, d := range s.daily {
		out = append(out, d.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if days > 0 && days < len(out) {
		out = out[:days]
	}
	return out, nil
}

func (s *Store) filterBets(keep func(domain.Bet) bool, opts domain.ListOpts) []domain.Bet {
	s.mu.RLock()
	var out []domain.Bet
	for i := len(s.bets) - 1; i >= 0; i-- {
		if keep(s.bets[i]) {
			out = append(out, s.bets[i])
		}
	}
	s.mu.RUnlock()
	return page(out, opts)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compile-time interface checks.
var (
	_ domain.MarketQuery = (*Store)(nil)
	_ domain.UserQuery   = (*Store)(nil)
	_ domain.StatsQuery  = (*Store)(nil)
)
