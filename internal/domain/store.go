package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// EntityReader loads the current indexed state. Every getter returns
// ErrNotFound when the row does not exist.
type EntityReader interface {
	Market(ctx context.Context, id string) (Market, error)
	User(ctx context.Context, id string) (User, error)
	Position(ctx context.Context, id string) (Position, error)
	GlobalStats(ctx context.Context) (GlobalStats, error)
	DailyStats(ctx context.Context, id string) (DailyStats, error)
	DailyUserSeen(ctx context.Context, dayID, userID string) (bool, error)
	Cursor(ctx context.Context) (Cursor, error)
}

// EntityStore is the persistence boundary of the indexer.
type EntityStore interface {
	EntityReader
	// Commit persists every write in cs together with cs.Cursor, atomically.
	Commit(ctx context.Context, cs *Changeset) error
	// MarketAddresses lists every indexed market contract.
	MarketAddresses(ctx context.Context) ([]string, error)
}

// SnapshotReader streams full entity tables.
type SnapshotReader interface {
	EachMarket(ctx context.Context, fn func(Market) error) error
	EachUser(ctx context.Context, fn func(User) error) error
	EachPosition(ctx context.Context, fn func(Position) error) error
}

// MarketFilter narrows market listings. Empty fields match everything.
type MarketFilter struct {
	Status   MarketStatus
	Category string
	Creator  string
}

// MarketQuery serves read-side market lookups.
type MarketQuery interface {
	GetMarket(ctx context.Context, id string) (Market, error)
	ListMarkets(ctx context.Context, f MarketFilter, opts ListOpts) ([]Market, error)
	ListMarketBets(ctx context.Context, marketID string, opts ListOpts) ([]Bet, error)
	ListMarketEvents(ctx context.Context, marketID string, opts ListOpts) ([]MarketEvent, error)
}

// LeaderboardOrder selects the ranking column of the leaderboard.
type LeaderboardOrder string

const (
	LeaderboardByPnL    LeaderboardOrder = "pnl"
	LeaderboardByWins   LeaderboardOrder = "wins"
	LeaderboardByVolume LeaderboardOrder = "volume"
)

// UserQuery serves read-side user lookups.
type UserQuery interface {
	GetUser(ctx context.Context, id string) (User, error)
	// Leaderboard lists users with at least one bet, best first.
	Leaderboard(ctx context.Context, by LeaderboardOrder, opts ListOpts) ([]User, error)
	ListUserPositions(ctx context.Context, userID string, unclaimedOnly bool, opts ListOpts) ([]PositionView, error)
	ListUserBets(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
}

// StatsQuery serves platform counters.
type StatsQuery interface {
	GetGlobalStats(ctx context.Context) (GlobalStats, error)
	// ListDailyStats returns up to days buckets, newest first.
	ListDailyStats(ctx context.Context, days int) ([]DailyStats, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
