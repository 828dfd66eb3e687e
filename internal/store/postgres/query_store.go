package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

const betCols = `id, market_id, user_id, outcome, amount, shares, odds,
	created_at, block, tx_hash, claimed, claimed_amount`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var nums numFields
	var outcome int16
	var block int64
	err := row.Scan(
		&b.ID, &b.Market, &b.User, &outcome,
		nums.into(&b.Amount), nums.into(&b.Shares), nums.into(&b.Odds),
		&b.CreatedAt, &block, &b.TxHash, &b.Claimed, nums.into(&b.ClaimedAmount),
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Outcome = domain.Outcome(outcome)
	b.Block = uint64(block)
	b.CreatedAt = ts(b.CreatedAt)
	return b, nums.decode()
}

func scanMarketEvent(row pgx.Row) (domain.MarketEvent, error) {
	var e domain.MarketEvent
	var typ string
	var block int64
	if err := row.Scan(&e.ID, &e.Market, &typ, &e.Timestamp, &block, &e.TxHash); err != nil {
		return domain.MarketEvent{}, err
	}
	e.Type = domain.MarketEventType(typ)
	e.Block = uint64(block)
	e.Timestamp = ts(e.Timestamp)
	return e, nil
}

// appendPage adds LIMIT/OFFSET clauses for opts.
func appendPage(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// GetMarket implements domain.MarketQuery.
func (s *Store) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return s.Market(ctx, id)
}

// ListMarkets implements domain.MarketQuery, newest first.
func (s *Store) ListMarkets(ctx context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	var args []any

	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(" AND lower(category) = lower($%d)", len(args))
	}
	if f.Creator != "" {
		args = append(args, f.Creator)
		query += fmt.Sprintf(" AND lower(creator) = lower($%d)", len(args))
	}
	query += " ORDER BY created_at DESC, id ASC"
	query, args = appendPage(query, args, opts)

	markets, err := collect(ctx, s.pool, query, args, scanMarket)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return markets, nil
}

// ListMarketBets implements domain.MarketQuery, newest first.
func (s *Store) ListMarketBets(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query, args := appendPage(`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY seq DESC`, []any{marketID}, opts)
	bets, err := collect(ctx, s.pool, query, args, scanBet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets of market %s: %w", marketID, err)
	}
	return bets, nil
}

// ListMarketEvents implements domain.MarketQuery, newest first.
func (s *Store) ListMarketEvents(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	query, args := appendPage(
		`SELECT id, market_id, type, ts, block, tx_hash FROM market_events WHERE market_id = $1 ORDER BY seq DESC`,
		[]any{marketID}, opts,
	)
	events, err := collect(ctx, s.pool, query, args, scanMarketEvent)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events of market %s: %w", marketID, err)
	}
	return events, nil
}

// GetUser implements domain.UserQuery.
func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.User(ctx, id)
}

var leaderboardOrder = map[domain.LeaderboardOrder]string{
	domain.LeaderboardByPnL:    "pnl DESC",
	domain.LeaderboardByWins:   "win_count DESC",
	domain.LeaderboardByVolume: "total_wagered DESC",
}

// Leaderboard implements domain.UserQuery.
func (s *Store) Leaderboard(ctx context.Context, by domain.LeaderboardOrder, opts domain.ListOpts) ([]domain.User, error) {
	order, ok := leaderboardOrder[by]
	if !ok {
		order = leaderboardOrder[domain.LeaderboardByPnL]
	}
	query, args := appendPage(
		`SELECT `+userCols+` FROM users WHERE total_bets > 0 ORDER BY `+order+`, id ASC`,
		nil, opts,
	)
	users, err := collect(ctx, s.pool, query, args, scanUser)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard by %s: %w", by, err)
	}
	return users, nil
}

// ListUserPositions implements domain.UserQuery, newest first.
func (s *Store) ListUserPositions(ctx context.Context, userID string, unclaimedOnly bool, opts domain.ListOpts) ([]domain.PositionView, error) {
	query := `SELECT p.id, p.user_id, p.market_id, p.outcome, p.amount, p.shares, p.claimed, p.pnl, p.created_at,
		m.id, m.market_id, m.creator, m.question, m.category, m.resolution_date,
		m.yes_pool, m.no_pool, m.total_volume, m.status, m.result, m.created_at, m.resolved_at, m.position_ids
		FROM positions p JOIN markets m ON m.id = p.market_id
		WHERE p.user_id = $1`
	if unclaimedOnly {
		query += ` AND NOT p.claimed`
	}
	query += ` ORDER BY p.created_at DESC, p.id ASC`
	query, args := appendPage(query, []any{userID}, opts)

	views, err := collect(ctx, s.pool, query, args, scanPositionView)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions of %s: %w", userID, err)
	}
	return views, nil
}

func scanPositionView(row pgx.Row) (domain.PositionView, error) {
	var ps positionScan
	var ms marketScan
	if err := row.Scan(append(ps.targets(), ms.targets()...)...); err != nil {
		return domain.PositionView{}, err
	}
	p, err := ps.finish()
	if err != nil {
		return domain.PositionView{}, err
	}
	m, err := ms.finish()
	if err != nil {
		return domain.PositionView{}, err
	}
	return domain.PositionView{Position: p, MarketInfo: m}, nil
}

// ListUserBets implements domain.UserQuery, newest first.
func (s *Store) ListUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query, args := appendPage(`SELECT `+betCols+` FROM bets WHERE user_id = $1 ORDER BY seq DESC`, []any{userID}, opts)
	bets, err := collect(ctx, s.pool, query, args, scanBet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets of user %s: %w", userID, err)
	}
	return bets, nil
}

// GetGlobalStats implements domain.StatsQuery. An empty index reports zeros.
func (s *Store) GetGlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	g, err := s.GlobalStats(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewGlobalStats(), nil
	}
	return g, err
}

// ListDailyStats implements domain.StatsQuery.
func (s *Store) ListDailyStats(ctx context.Context, days int) ([]domain.DailyStats, error) {
	query, args := appendPage(`SELECT `+dailyCols+` FROM daily_stats ORDER BY date DESC`, nil, domain.ListOpts{Limit: days})
	stats, err := collect(ctx, s.pool, query, args, scanDaily)
	if err != nil {
		return nil, fmt.Errorf("postgres: list daily stats: %w", err)
	}
	return stats, nil
}
