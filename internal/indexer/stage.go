package indexer

import (
	"context"
	"errors"
	"slices"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// stage is a write overlay on top of an EntityReader. Reads see staged
// writes first. Nothing reaches the base until the owning Changeset is
// committed, so a discarded stage leaves no trace.
type stage struct {
	base      domain.EntityReader
	cs        *domain.Changeset
	cursorSet bool
}

func newStage(base domain.EntityReader) *stage {
	return &stage{base: base, cs: domain.NewChangeset()}
}

func (s *stage) Market(ctx context.Context, id string) (domain.Market, error) {
	if m, ok := s.cs.Markets[id]; ok {
		return m.Clone(), nil
	}
	m, err := s.base.Market(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	return m.Clone(), nil
}

func (s *stage) User(ctx context.Context, id string) (domain.User, error) {
	if u, ok := s.cs.Users[id]; ok {
		return u.Clone(), nil
	}
	u, err := s.base.User(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return u.Clone(), nil
}

func (s *stage) Position(ctx context.Context, id string) (domain.Position, error) {
	if p, ok := s.cs.Positions[id]; ok {
		return p.Clone(), nil
	}
	p, err := s.base.Position(ctx, id)
	if err != nil {
		return domain.Position{}, err
	}
	return p.Clone(), nil
}

func (s *stage) GlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	if s.cs.Global != nil {
		return s.cs.Global.Clone(), nil
	}
	g, err := s.base.GlobalStats(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	return g.Clone(), nil
}

func (s *stage) DailyStats(ctx context.Context, id string) (domain.DailyStats, error) {
	if d, ok := s.cs.Daily[id]; ok {
		return d.Clone(), nil
	}
	d, err := s.base.DailyStats(ctx, id)
	if err != nil {
		return domain.DailyStats{}, err
	}
	return d.Clone(), nil
}

func (s *stage) DailyUserSeen(ctx context.Context, dayID, userID string) (bool, error) {
	if slices.Contains(s.cs.DailyUsers, domain.DailyUser{DayID: dayID, UserID: userID}) {
		return true, nil
	}
	return s.base.DailyUserSeen(ctx, dayID, userID)
}

func (s *stage) Cursor(ctx context.Context) (domain.Cursor, error) {
	if s.cursorSet {
		return s.cs.Cursor, nil
	}
	return s.base.Cursor(ctx)
}

func (s *stage) putMarket(m domain.Market)      { s.cs.Markets[m.ID] = m }
func (s *stage) putUser(u domain.User)          { s.cs.Users[u.ID] = u }
func (s *stage) putPosition(p domain.Position)  { s.cs.Positions[p.ID] = p }
func (s *stage) putGlobal(g domain.GlobalStats) { s.cs.Global = &g }
func (s *stage) putDaily(d domain.DailyStats)   { s.cs.Daily[d.ID] = d }
func (s *stage) addBet(b domain.Bet)            { s.cs.Bets = append(s.cs.Bets, b) }
func (s *stage) addBetEvent(e domain.BetEvent)  { s.cs.BetEvents = append(s.cs.BetEvents, e) }
func (s *stage) addMarketEvent(e domain.MarketEvent) {
	s.cs.MarketEvents = append(s.cs.MarketEvents, e)
}

func (s *stage) setCursor(c domain.Cursor) {
	s.cs.Cursor = c
	s.cursorSet = true
}

// merge folds a child stage's writes into s.
func (s *stage) merge(child *stage) {
	for id, m := range child.cs.Markets {
		s.cs.Markets[id] = m
	}
	for id, u := range child.cs.Users {
		s.cs.Users[id] = u
	}
	for id, p := range child.cs.Positions {
		s.cs.Positions[id] = p
	}
	if child.cs.Global != nil {
		s.cs.Global = child.cs.Global
	}
	for id, d := range child.cs.Daily {
		s.cs.Daily[id] = d
	}
	s.cs.DailyUsers = append(s.cs.DailyUsers, child.cs.DailyUsers...)
	s.cs.Bets = append(s.cs.Bets, child.cs.Bets...)
	s.cs.BetEvents = append(s.cs.BetEvents, child.cs.BetEvents...)
	s.cs.MarketEvents = append(s.cs.MarketEvents, child.cs.MarketEvents...)
	if child.cursorSet {
		s.setCursor(child.cs.Cursor)
	}
}

// user loads id or starts a fresh zeroed user. created is true for the
// latter.
func (s *stage) user(ctx context.Context, id string) (u domain.User, created bool, err error) {
	u, err = s.User(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewUser(id), true, nil
	}
	return u, false, err
}

func (s *stage) globalStats(ctx context.Context) (domain.GlobalStats, error) {
	g, err := s.GlobalStats(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewGlobalStats(), nil
	}
	return g, err
}

func (s *stage) dailyStats(ctx context.Context, ts uint64) (domain.DailyStats, error) {
	d, err := s.DailyStats(ctx, domain.DayID(ts))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewDailyStats(ts), nil
	}
	return d, err
}
