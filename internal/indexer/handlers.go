package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// handleMarketCreated opens a market with empty pools and bumps the market
// counters.
func (ix *Indexer) handleMarketCreated(ctx context.Context, s *stage, e domain.MarketCreated) error {
	if err := ix.checkFactory(e); err != nil {
		return err
	}
	if e.MarketID == nil || e.Market == "" || e.ResolutionTime > math.MaxInt64 {
		return domain.NewIndexError(domain.ErrInvalidEvent, e, "missing market id or address")
	}

	id := NormalizeAddress(e.Market)
	if _, err := s.Market(ctx, id); err == nil {
		return domain.NewIndexError(domain.ErrMarketExists, e, id)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("indexer: load market %s: %w", id, err)
	}

	s.putMarket(domain.Market{
		ID:             id,
		MarketID:       domain.CloneInt(e.MarketID),
		Creator:        NormalizeAddress(e.Creator),
		Question:       e.Question,
		Category:       e.Category,
		Outcomes:       domain.MarketOutcomes,
		ResolutionDate: time.Unix(int64(e.ResolutionTime), 0).UTC(),
		YesPool:        domain.Zero(),
		NoPool:         domain.Zero(),
		TotalVolume:    domain.Zero(),
		Status:         domain.MarketStatusOpen,
		CreatedAt:      e.Time(),
		PositionIDs:    []string{},
	})

	s.addMarketEvent(domain.MarketEvent{
		ID:        EventID(e.EventMeta),
		Market:    id,
		Type:      domain.MarketEventCreated,
		Timestamp: e.Time(),
		Block:     e.Block,
		TxHash:    e.TxHash,
	})

	global, err := s.globalStats(ctx)
	if err != nil {
		return fmt.Errorf("indexer: load global stats: %w", err)
	}
	global.TotalMarkets++
	global.ActiveMarkets++
	s.putGlobal(global)

	daily, err := s.dailyStats(ctx, e.Timestamp)
	if err != nil {
		return fmt.Errorf("indexer: load daily stats: %w", err)
	}
	daily.MarketsCreated++
	s.putDaily(daily)
	return nil
}

// handleBetPlaced folds one bet into the position, market, user and stats
// aggregates and appends the immutable Bet and BetEvent rows.
func (ix *Indexer) handleBetPlaced(ctx context.Context, s *stage, e domain.BetPlaced) error {
	if e.Amount == nil || e.Shares == nil || e.Amount.Sign() < 0 || e.Shares.Sign() < 0 {
		return domain.NewIndexError(domain.ErrInvalidEvent, e, "amount and shares must be non-negative")
	}
	if !e.Outcome.Valid() {
		return domain.NewIndexError(domain.ErrInvalidEvent, e, fmt.Sprintf("outcome %d", e.Outcome))
	}

	marketID := NormalizeAddress(e.Address)
	market, err := s.Market(ctx, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewIndexError(domain.ErrMarketNotFound, e, marketID)
	}
	if err != nil {
		return fmt.Errorf("indexer: load market %s: %w", marketID, err)
	}

	odds := preTradeOdds(market, e.Outcome)

	userID := NormalizeAddress(e.Bettor)
	user, created, err := s.user(ctx, userID)
	if err != nil {
		return fmt.Errorf("indexer: load user %s: %w", userID, err)
	}

	posID := PositionID(userID, marketID, e.Outcome)
	pos, err := s.Position(ctx, posID)
	if errors.Is(err, domain.ErrNotFound) {
		pos = domain.Position{
			ID:        posID,
			User:      userID,
			Market:    marketID,
			Outcome:   e.Outcome,
			Amount:    domain.Zero(),
			Shares:    domain.Zero(),
			CreatedAt: e.Time(),
		}
	} else if err != nil {
		return fmt.Errorf("indexer: load position %s: %w", posID, err)
	}
	pos.Amount.Add(pos.Amount, e.Amount)
	pos.Shares.Add(pos.Shares, e.Shares)
	s.putPosition(pos)

	if !market.HasPosition(posID) {
		market.PositionIDs = append(market.PositionIDs, posID)
	}
	if e.Outcome == domain.OutcomeYes {
		market.YesPool.Add(market.YesPool, e.Shares)
	} else {
		market.NoPool.Add(market.NoPool, e.Shares)
	}
	market.TotalVolume.Add(market.TotalVolume, e.Amount)
	s.putMarket(market)

	user.TotalBets++
	user.TotalWagered.Add(user.TotalWagered, e.Amount)
	s.putUser(user)

	s.addBet(domain.Bet{
		ID:        BetID(e.EventMeta),
		Market:    marketID,
		User:      userID,
		Outcome:   e.Outcome,
		Amount:    domain.CloneInt(e.Amount),
		Shares:    domain.CloneInt(e.Shares),
		Odds:      odds,
		CreatedAt: e.Time(),
		Block:     e.Block,
		TxHash:    e.TxHash,
	})
	s.addBetEvent(domain.BetEvent{
		ID:        EventID(e.EventMeta),
		User:      userID,
		Market:    marketID,
		Outcome:   e.Outcome,
		Amount:    domain.CloneInt(e.Amount),
		Timestamp: e.Time(),
		Block:     e.Block,
		TxHash:    e.TxHash,
	})

	global, err := s.globalStats(ctx)
	if err != nil {
		return fmt.Errorf("indexer: load global stats: %w", err)
	}
	global.TotalBets++
	global.TotalVolume.Add(global.TotalVolume, e.Amount)
	if created {
		global.TotalUsers++
	}
	s.putGlobal(global)

	daily, err := s.dailyStats(ctx, e.Timestamp)
	if err != nil {
		return fmt.Errorf("indexer: load daily stats: %w", err)
	}
	daily.BetsPlaced++
	daily.VolumeTraded.Add(daily.VolumeTraded, e.Amount)
	seen, err := s.DailyUserSeen(ctx, daily.ID, userID)
	if err != nil {
		return fmt.Errorf("indexer: load daily user: %w", err)
	}
	if !seen {
		daily.ActiveUsers++
		s.cs.DailyUsers = append(s.cs.DailyUsers, domain.DailyUser{DayID: daily.ID, UserID: userID})
	}
	s.putDaily(daily)
	return nil
}

// preTradeOdds is the price of outcome before the bet lands: the opposite
// pool over the total, in Wei fixed point. An empty market prices at 0.5.
func preTradeOdds(m domain.Market, outcome domain.Outcome) *big.Int {
	total := m.TotalPool()
	if total.Sign() == 0 {
		return domain.CloneInt(domain.HalfWei)
	}
	losing := domain.IntOrZero(m.NoPool)
	if outcome != domain.OutcomeYes {
		losing = domain.IntOrZero(m.YesPool)
	}
	odds := new(big.Int).Mul(losing, domain.Wei)
	return odds.Quo(odds, total)
}

// handleMarketResolved settles a market and fixes the win/loss
// classification and pnl of every position on it. Winner pnl is estimated
// from the pools as they stand at resolution; loser pnl is the full stake.
func (ix *Indexer) handleMarketResolved(ctx context.Context, s *stage, e domain.MarketResolved) error {
	if err := ix.checkFactory(e); err != nil {
		return err
	}
	if !e.WinningOutcome.Valid() {
		return domain.NewIndexError(domain.ErrInvalidEvent, e, fmt.Sprintf("outcome %d", e.WinningOutcome))
	}

	marketID := NormalizeAddress(e.Market)
	market, err := s.Market(ctx, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewIndexError(domain.ErrMarketNotFound, e, marketID)
	}
	if err != nil {
		return fmt.Errorf("indexer: load market %s: %w", marketID, err)
	}
	if market.Status == domain.MarketStatusResolved {
		return domain.NewIndexError(domain.ErrMarketAlreadyResolved, e, marketID)
	}

	result := e.WinningOutcome
	resolvedAt := e.Time()
	market.Status = domain.MarketStatusResolved
	market.Result = &result
	market.ResolvedAt = &resolvedAt
	s.putMarket(market)

	totalPool := market.TotalPool()
	winningPool := market.Pool(result)

	for _, posID := range market.PositionIDs {
		pos, err := s.Position(ctx, posID)
		if errors.Is(err, domain.ErrNotFound) {
			ix.logger.Debug("position listed on market is missing",
				"market", marketID, "position", posID)
			continue
		}
		if err != nil {
			return fmt.Errorf("indexer: load position %s: %w", posID, err)
		}
		user, err := s.User(ctx, pos.User)
		if errors.Is(err, domain.ErrNotFound) {
			ix.logger.Debug("position owner is missing",
				"market", marketID, "position", posID, "user", pos.User)
			continue
		}
		if err != nil {
			return fmt.Errorf("indexer: load user %s: %w", pos.User, err)
		}

		if pos.Outcome == result {
			user.WinCount++
			if winningPool.Sign() > 0 {
				expected := new(big.Int).Mul(pos.Shares, totalPool)
				expected.Quo(expected, winningPool)
				pnl := expected.Sub(expected, pos.Amount)
				user.PnL.Add(user.PnL, pnl)
				pos.PnL = pnl
			}
		} else {
			user.LossCount++
			user.TotalLost.Add(user.TotalLost, pos.Amount)
			user.PnL.Sub(user.PnL, pos.Amount)
			pos.PnL = new(big.Int).Neg(pos.Amount)
		}
		s.putUser(user)
		s.putPosition(pos)
	}

	s.addMarketEvent(domain.MarketEvent{
		ID:        EventID(e.EventMeta),
		Market:    marketID,
		Type:      domain.MarketEventResolved,
		Timestamp: e.Time(),
		Block:     e.Block,
		TxHash:    e.TxHash,
	})

	global, err := s.globalStats(ctx)
	if err != nil {
		return fmt.Errorf("indexer: load global stats: %w", err)
	}
	global.ActiveMarkets--
	s.putGlobal(global)
	return nil
}

// handleClaimed marks the claimer's winning position as claimed and books
// the payout in totalWon. Pnl and win counts were fixed at resolution and
// are not touched here.
func (ix *Indexer) handleClaimed(ctx context.Context, s *stage, e domain.Claimed) error {
	if e.Amount == nil || e.Amount.Sign() < 0 {
		return domain.NewIndexError(domain.ErrInvalidEvent, e, "amount must be non-negative")
	}

	marketID := NormalizeAddress(e.Address)
	market, err := s.Market(ctx, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewIndexError(domain.ErrMarketNotFound, e, marketID)
	}
	if err != nil {
		return fmt.Errorf("indexer: load market %s: %w", marketID, err)
	}
	if market.Result == nil {
		return domain.NewIndexError(domain.ErrMarketNotResolved, e, marketID)
	}

	userID := NormalizeAddress(e.Claimer)
	posID := PositionID(userID, marketID, *market.Result)
	pos, err := s.Position(ctx, posID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewIndexError(domain.ErrPositionNotFound, e, posID)
	}
	if err != nil {
		return fmt.Errorf("indexer: load position %s: %w", posID, err)
	}
	if pos.Claimed {
		return domain.NewIndexError(domain.ErrAlreadyClaimed, e, posID)
	}

	user, _, err := s.user(ctx, userID)
	if err != nil {
		return fmt.Errorf("indexer: load user %s: %w", userID, err)
	}

	pos.Claimed = true
	s.putPosition(pos)

	user.TotalWon.Add(user.TotalWon, e.Amount)
	s.putUser(user)
	return nil
}

// checkFactory rejects factory events that were not emitted by the
// configured factory contract.
func (ix *Indexer) checkFactory(ev domain.Event) error {
	factory := ix.registry.Factory()
	if factory == "" {
		return nil
	}
	if emitter := NormalizeAddress(ev.Header().Address); emitter != factory {
		return domain.NewIndexError(domain.ErrInvalidEvent, ev, "emitter "+emitter+" is not the factory")
	}
	return nil
}
