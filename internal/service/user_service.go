package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
)

// UserService serves per-address aggregates and the leaderboard.
type UserService struct {
	users  domain.UserQuery
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users domain.UserQuery, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// GetUser returns the aggregate for an address.
func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	id = indexer.NormalizeAddress(id)
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: get %q: %w", id, err)
	}
	return u, nil
}

// ListPositions returns a user's positions joined with their markets.
func (s *UserService) ListPositions(ctx context.Context, id string, unclaimedOnly bool, opts domain.ListOpts) ([]domain.PositionView, error) {
	views, err := s.users.ListUserPositions(ctx, indexer.NormalizeAddress(id), unclaimedOnly, opts)
	if err != nil {
		return nil, fmt.Errorf("user_service: list positions: %w", err)
	}
	return views, nil
}

// ListBets returns a user's bets, newest first.
func (s *UserService) ListBets(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.users.ListUserBets(ctx, indexer.NormalizeAddress(id), opts)
	if err != nil {
		return nil, fmt.Errorf("user_service: list bets: %w", err)
	}
	return bets, nil
}

// Leaderboard ranks users by pnl, wins or volume. An empty order ranks by
// pnl.
func (s *UserService) Leaderboard(ctx context.Context, by string, opts domain.ListOpts) ([]domain.User, error) {
	order := domain.LeaderboardOrder(by)
	switch order {
	case "":
		order = domain.LeaderboardByPnL
	case domain.LeaderboardByPnL, domain.LeaderboardByWins, domain.LeaderboardByVolume:
	default:
		return nil, fmt.Errorf("user_service: leaderboard order %q: %w", by, domain.ErrInvalidInput)
	}

	users, err := s.users.Leaderboard(ctx, order, opts)
	if err != nil {
		return nil, fmt.Errorf("user_service: leaderboard: %w", err)
	}
	return users, nil
}
