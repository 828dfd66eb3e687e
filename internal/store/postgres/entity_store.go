package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// Store implements the indexer's entity store and the API read models on
// PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const marketCols = `id, market_id, creator, question, category, resolution_date,
	yes_pool, no_pool, total_volume, status, result, created_at, resolved_at, position_ids`

const userCols = `id, total_bets, total_wagered, total_won, total_lost, pnl, win_count, loss_count`

const positionCols = `id, user_id, market_id, outcome, amount, shares, claimed, pnl, created_at`

const globalCols = `id, total_markets, total_bets, total_volume, active_markets, total_users`

const dailyCols = `id, date, markets_created, bets_placed, volume_traded, active_users`

// marketScan holds the scan targets of one markets row.
type marketScan struct {
	m      domain.Market
	nums   numFields
	status string
	result *int16
}

func (ms *marketScan) targets() []any {
	m := &ms.m
	return []any{
		&m.ID, ms.nums.into(&m.MarketID), &m.Creator, &m.Question, &m.Category, &m.ResolutionDate,
		ms.nums.into(&m.YesPool), ms.nums.into(&m.NoPool), ms.nums.into(&m.TotalVolume),
		&ms.status, &ms.result, &m.CreatedAt, &m.ResolvedAt, &m.PositionIDs,
	}
}

func (ms *marketScan) finish() (domain.Market, error) {
	if err := ms.nums.decode(); err != nil {
		return domain.Market{}, err
	}
	m := ms.m
	m.Outcomes = domain.MarketOutcomes
	m.Status = domain.MarketStatus(ms.status)
	if ms.result != nil {
		o := domain.Outcome(*ms.result)
		m.Result = &o
	}
	m.ResolutionDate = ts(m.ResolutionDate)
	m.CreatedAt = ts(m.CreatedAt)
	if m.ResolvedAt != nil {
		t := ts(*m.ResolvedAt)
		m.ResolvedAt = &t
	}
	if m.PositionIDs == nil {
		m.PositionIDs = []string{}
	}
	return m, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var ms marketScan
	if err := row.Scan(ms.targets()...); err != nil {
		return domain.Market{}, err
	}
	return ms.finish()
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var nums numFields
	err := row.Scan(
		&u.ID, &u.TotalBets,
		nums.into(&u.TotalWagered), nums.into(&u.TotalWon), nums.into(&u.TotalLost), nums.into(&u.PnL),
		&u.WinCount, &u.LossCount,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nums.decode()
}

// positionScan holds the scan targets of one positions row.
type positionScan struct {
	p       domain.Position
	nums    numFields
	outcome int16
}

func (ps *positionScan) targets() []any {
	p := &ps.p
	return []any{
		&p.ID, &p.User, &p.Market, &ps.outcome,
		ps.nums.into(&p.Amount), ps.nums.into(&p.Shares), &p.Claimed, ps.nums.into(&p.PnL), &p.CreatedAt,
	}
}

func (ps *positionScan) finish() (domain.Position, error) {
	if err := ps.nums.decode(); err != nil {
		return domain.Position{}, err
	}
	p := ps.p
	p.Outcome = domain.Outcome(ps.outcome)
	p.CreatedAt = ts(p.CreatedAt)
	return p, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var ps positionScan
	if err := row.Scan(ps.targets()...); err != nil {
		return domain.Position{}, err
	}
	return ps.finish()
}

func scanGlobal(row pgx.Row) (domain.GlobalStats, error) {
	var g domain.GlobalStats
	var nums numFields
	err := row.Scan(&g.ID, &g.TotalMarkets, &g.TotalBets, nums.into(&g.TotalVolume), &g.ActiveMarkets, &g.TotalUsers)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	return g, nums.decode()
}

func scanDaily(row pgx.Row) (domain.DailyStats, error) {
	var d domain.DailyStats
	var nums numFields
	err := row.Scan(&d.ID, &d.Date, &d.MarketsCreated, &d.BetsPlaced, nums.into(&d.VolumeTraded), &d.ActiveUsers)
	if err != nil {
		return domain.DailyStats{}, err
	}
	d.Date = d.Date.UTC()
	return d, nums.decode()
}

// notFound maps pgx.ErrNoRows to domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// Market implements domain.EntityReader.
func (s *Store) Market(ctx context.Context, id string) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id))
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, notFound(err))
	}
	return m, nil
}

// User implements domain.EntityReader.
func (s *Store) User(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, notFound(err))
	}
	return u, nil
}

// Position implements domain.EntityReader.
func (s *Store) Position(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx, `SELECT `+positionCols+` FROM positions WHERE id = $1`, id))
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, notFound(err))
	}
	return p, nil
}

// GlobalStats implements domain.EntityReader.
func (s *Store) GlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	g, err := scanGlobal(s.pool.QueryRow(ctx, `SELECT `+globalCols+` FROM global_stats WHERE id = $1`, domain.GlobalStatsID))
	if err != nil {
		return domain.GlobalStats{}, fmt.Errorf("postgres: get global stats: %w", notFound(err))
	}
	return g, nil
}

// DailyStats implements domain.EntityReader.
func (s *Store) DailyStats(ctx context.Context, id string) (domain.DailyStats, error) {
	d, err := scanDaily(s.pool.QueryRow(ctx, `SELECT `+dailyCols+` FROM daily_stats WHERE id = $1`, id))
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("postgres: get daily stats %s: %w", id, notFound(err))
	}
	return d, nil
}

// DailyUserSeen implements domain.EntityReader.
func (s *Store) DailyUserSeen(ctx context.Context, dayID, userID string) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM daily_users WHERE day_id = $1 AND user_id = $2)`,
		dayID, userID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("postgres: daily user %s/%s: %w", dayID, userID, err)
	}
	return seen, nil
}

// Cursor implements domain.EntityReader.
func (s *Store) Cursor(ctx context.Context) (domain.Cursor, error) {
	var c domain.Cursor
	var block int64
	var logIndex int32
	err := s.pool.QueryRow(ctx, `SELECT block, log_index, block_hash FROM indexer_cursor`).
		Scan(&block, &logIndex, &c.BlockHash)
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("postgres: get cursor: %w", notFound(err))
	}
	c.Block = uint64(block)
	c.LogIndex = uint(logIndex)
	return c, nil
}

// MarketAddresses implements domain.EntityStore.
func (s *Store) MarketAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM markets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market addresses: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list market addresses rows: %w", err)
	}
	return ids, nil
}

const upsertMarketSQL = `
	INSERT INTO markets (` + marketCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		yes_pool     = EXCLUDED.yes_pool,
		no_pool      = EXCLUDED.no_pool,
		total_volume = EXCLUDED.total_volume,
		status       = EXCLUDED.status,
		result       = EXCLUDED.result,
		resolved_at  = EXCLUDED.resolved_at,
		position_ids = EXCLUDED.position_ids`

const upsertUserSQL = `
	INSERT INTO users (` + userCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		total_bets    = EXCLUDED.total_bets,
		total_wagered = EXCLUDED.total_wagered,
		total_won     = EXCLUDED.total_won,
		total_lost    = EXCLUDED.total_lost,
		pnl           = EXCLUDED.pnl,
		win_count     = EXCLUDED.win_count,
		loss_count    = EXCLUDED.loss_count`

const upsertPositionSQL = `
	INSERT INTO positions (` + positionCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		amount  = EXCLUDED.amount,
		shares  = EXCLUDED.shares,
		claimed = EXCLUDED.claimed,
		pnl     = EXCLUDED.pnl`

const upsertGlobalSQL = `
	INSERT INTO global_stats (` + globalCols + `)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		total_markets  = EXCLUDED.total_markets,
		total_bets     = EXCLUDED.total_bets,
		total_volume   = EXCLUDED.total_volume,
		active_markets = EXCLUDED.active_markets,
		total_users    = EXCLUDED.total_users`

const upsertDailySQL = `
	INSERT INTO daily_stats (` + dailyCols + `)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		markets_created = EXCLUDED.markets_created,
		bets_placed     = EXCLUDED.bets_placed,
		volume_traded   = EXCLUDED.volume_traded,
		active_users    = EXCLUDED.active_users`

const insertDailyUserSQL = `
	INSERT INTO daily_users (day_id, user_id) VALUES ($1, $2)
	ON CONFLICT DO NOTHING`

const insertBetSQL = `
	INSERT INTO bets (id, market_id, user_id, outcome, amount, shares, odds,
		created_at, block, tx_hash, claimed, claimed_amount)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO NOTHING`

const insertBetEventSQL = `
	INSERT INTO bet_events (id, user_id, market_id, outcome, amount, ts, block, tx_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

const insertMarketEventSQL = `
	INSERT INTO market_events (id, market_id, type, ts, block, tx_hash)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING`

const upsertCursorSQL = `
	INSERT INTO indexer_cursor (id, block, log_index, block_hash, updated_at)
	VALUES (TRUE, $1, $2, $3, NOW())
	ON CONFLICT (id) DO UPDATE SET
		block      = EXCLUDED.block,
		log_index  = EXCLUDED.log_index,
		block_hash = EXCLUDED.block_hash,
		updated_at = NOW()
	WHERE (indexer_cursor.block, indexer_cursor.log_index) < (EXCLUDED.block, EXCLUDED.log_index)`

// cursorAdvanced maps the cursor upsert's row count to ErrOutOfOrder when a
// newer cursor is already stored.
func cursorAdvanced(rows int64, c domain.Cursor) error {
	if rows != 1 {
		return fmt.Errorf("postgres: commit at %s: %w", c, domain.ErrOutOfOrder)
	}
	return nil
}

// Commit implements domain.EntityStore. Every write and the cursor land in a
// single transaction. The cursor goes first and must advance, otherwise the
// transaction rolls back with domain.ErrOutOfOrder.
func (s *Store) Commit(ctx context.Context, cs *domain.Changeset) error {
	batch := &pgx.Batch{}
	batch.Queue(upsertCursorSQL, int64(cs.Cursor.Block), int32(cs.Cursor.LogIndex), cs.Cursor.BlockHash)

	for _, id := range cs.MarketIDs() {
		m := cs.Markets[id]
		var result *int16
		if m.Result != nil {
			r := int16(*m.Result)
			result = &r
		}
		positions := m.PositionIDs
		if positions == nil {
			positions = []string{}
		}
		batch.Queue(upsertMarketSQL,
			m.ID, numeric(m.MarketID), m.Creator, m.Question, m.Category, m.ResolutionDate,
			numeric(m.YesPool), numeric(m.NoPool), numeric(m.TotalVolume),
			string(m.Status), result, m.CreatedAt, m.ResolvedAt, positions,
		)
	}
	for _, id := range cs.UserIDs() {
		u := cs.Users[id]
		batch.Queue(upsertUserSQL,
			u.ID, u.TotalBets, numeric(u.TotalWagered), numeric(u.TotalWon), numeric(u.TotalLost),
			numeric(u.PnL), u.WinCount, u.LossCount,
		)
	}
	for _, id := range cs.PositionIDs() {
		p := cs.Positions[id]
		batch.Queue(upsertPositionSQL,
			p.ID, p.User, p.Market, int16(p.Outcome), numeric(p.Amount), numeric(p.Shares),
			p.Claimed, numeric(p.PnL), p.CreatedAt,
		)
	}
	if g := cs.Global; g != nil {
		batch.Queue(upsertGlobalSQL, g.ID, g.TotalMarkets, g.TotalBets, numeric(g.TotalVolume), g.ActiveMarkets, g.TotalUsers)
	}
	for _, id := range cs.DailyIDs() {
		d := cs.Daily[id]
		batch.Queue(upsertDailySQL, d.ID, d.Date, d.MarketsCreated, d.BetsPlaced, numeric(d.VolumeTraded), d.ActiveUsers)
	}
	for _, du := range cs.DailyUsers {
		batch.Queue(insertDailyUserSQL, du.DayID, du.UserID)
	}
	for _, b := range cs.Bets {
		batch.Queue(insertBetSQL,
			b.ID, b.Market, b.User, int16(b.Outcome), numeric(b.Amount), numeric(b.Shares), numeric(b.Odds),
			b.CreatedAt, int64(b.Block), b.TxHash, b.Claimed, numeric(b.ClaimedAmount),
		)
	}
	for _, e := range cs.BetEvents {
		batch.Queue(insertBetEventSQL,
			e.ID, e.User, e.Market, int16(e.Outcome), numeric(e.Amount), e.Timestamp, int64(e.Block), e.TxHash,
		)
	}
	for _, e := range cs.MarketEvents {
		batch.Queue(insertMarketEventSQL, e.ID, e.Market, string(e.Type), e.Timestamp, int64(e.Block), e.TxHash)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: commit item %d at %s: %w", i, cs.Cursor, err)
		}
		if i == 0 {
			if err := cursorAdvanced(tag.RowsAffected(), cs.Cursor); err != nil {
				_ = br.Close()
				return err
			}
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close commit batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit at %s: %w", cs.Cursor, err)
	}
	return nil
}

// EachMarket implements domain.SnapshotReader in id order.
func (s *Store) EachMarket(ctx context.Context, fn func(domain.Market) error) error {
	return each(ctx, s.pool, `SELECT `+marketCols+` FROM markets ORDER BY id`, scanMarket, fn)
}

// EachUser implements domain.SnapshotReader in id order.
func (s *Store) EachUser(ctx context.Context, fn func(domain.User) error) error {
	return each(ctx, s.pool, `SELECT `+userCols+` FROM users ORDER BY id`, scanUser, fn)
}

// EachPosition implements domain.SnapshotReader in id order.
func (s *Store) EachPosition(ctx context.Context, fn func(domain.Position) error) error {
	return each(ctx, s.pool, `SELECT `+positionCols+` FROM positions ORDER BY id`, scanPosition, fn)
}

func each[T any](ctx context.Context, pool *pgxpool.Pool, query string, scan func(pgx.Row) (T, error), fn func(T) error) error {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres: snapshot query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return fmt.Errorf("postgres: snapshot scan: %w", err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, args []any, scan func(pgx.Row) (T, error)) ([]T, error) {
	out := []T{}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func ts(t time.Time) time.Time { return t.UTC() }

// Compile-time interface checks.
var (
	_ domain.EntityStore    = (*Store)(nil)
	_ domain.SnapshotReader = (*Store)(nil)
	_ domain.MarketQuery    = (*Store)(nil)
	_ domain.UserQuery      = (*Store)(nil)
	_ domain.StatsQuery     = (*Store)(nil)
)
