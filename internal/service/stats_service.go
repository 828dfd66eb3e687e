package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// StatsService serves platform-wide counters.
type StatsService struct {
	stats domain.StatsQuery
}

// NewStatsService creates a StatsService.
func NewStatsService(stats domain.StatsQuery) *StatsService {
	return &StatsService{stats: stats}
}

// Global returns the platform totals.
func (s *StatsService) Global(ctx context.Context) (domain.GlobalStats, error) {
	g, err := s.stats.GetGlobalStats(ctx)
	if err != nil {
		return domain.GlobalStats{}, fmt.Errorf("stats_service: global: %w", err)
	}
	return g, nil
}

// Daily returns up to days day buckets, newest first. Zero selects
// DefaultDays.
func (s *StatsService) Daily(ctx context.Context, days int) ([]domain.DailyStats, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < 1 || days > MaxDays {
		return nil, fmt.Errorf("stats_service: days must be 1-%d: %w", MaxDays, domain.ErrInvalidInput)
	}
	out, err := s.stats.ListDailyStats(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("stats_service: daily: %w", err)
	}
	return out, nil
}
