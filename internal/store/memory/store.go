// Package memory is a map-backed implementation of the entity store and its
// read models. It backs tests and replay verification runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// Store holds every entity in process memory. All reads return deep copies.
type Store struct {
	mu           sync.RWMutex
	markets      map[string]domain.Market
	users        map[string]domain.User
	positions    map[string]domain.Position
	global       *domain.GlobalStats
	daily        map[string]domain.DailyStats
	dailyUsers   map[domain.DailyUser]struct{}
	bets         []domain.Bet
	betIDs       map[string]struct{}
	betEvents    map[string]domain.BetEvent
	marketEvents []domain.MarketEvent
	eventIDs     map[string]struct{}
	cursor       *domain.Cursor
	commits      int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		markets:    make(map[string]domain.Market),
		users:      make(map[string]domain.User),
		positions:  make(map[string]domain.Position),
		daily:      make(map[string]domain.DailyStats),
		dailyUsers: make(map[domain.DailyUser]struct{}),
		betIDs:     make(map[string]struct{}),
		betEvents:  make(map[string]domain.BetEvent),
		eventIDs:   make(map[string]struct{}),
	}
}

// Commits returns how many changesets have been committed.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Market implements domain.EntityReader.
func (s *Store) Market(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m.Clone(), nil
}

// User implements domain.EntityReader.
func (s *Store) User(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u.Clone(), nil
}

// Position implements domain.EntityReader.
func (s *Store) Position(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// GlobalStats implements domain.EntityReader.
func (s *Store) GlobalStats(_ context.Context) (domain.GlobalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return domain.GlobalStats{}, domain.ErrNotFound
	}
	return s.global.Clone(), nil
}

// DailyStats implements domain.EntityReader.
func (s *Store) DailyStats(_ context.Context, id string) (domain.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.daily[id]
	if !ok {
		return domain.DailyStats{}, domain.ErrNotFound
	}
	return d.Clone(), nil
}

// DailyUserSeen implements domain.EntityReader.
func (s *Store) DailyUserSeen(_ context.Context, dayID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dailyUsers[domain.DailyUser{DayID: dayID, UserID: userID}]
	return ok, nil
}

// Cursor implements domain.EntityReader.
func (s *Store) Cursor(_ context.Context) (domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cursor == nil {
		return domain.Cursor{}, domain.ErrNotFound
	}
	return *s.cursor, nil
}

// MarketAddresses implements domain.EntityStore.
func (s *Store) MarketAddresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.markets))
	for id := range s.markets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Commit implements domain.EntityStore. Immutable rows that already exist
// are left untouched. A changeset whose cursor does not advance the stored
// one is rejected with domain.ErrOutOfOrder and writes nothing.
func (s *Store) Commit(_ context.Context, cs *domain.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor != nil && !s.cursor.Before(cs.Cursor) {
		return fmt.Errorf("memory: commit at %s behind %s: %w", cs.Cursor, *s.cursor, domain.ErrOutOfOrder)
	}

	for id, m := range cs.Markets {
		s.markets[id] = m.Clone()
	}
	for id, u := range cs.Users {
		s.users[id] = u.Clone()
	}
	for id, p := range cs.Positions {
		s.positions[id] = p.Clone()
	}
	if cs.Global != nil {
		g := cs.Global.Clone()
		s.global = &g
	}
	for id, d := range cs.Daily {
		s.daily[id] = d.Clone()
	}
	for _, du := range cs.DailyUsers {
		s.dailyUsers[du] = struct{}{}
	}
	for _, b := range cs.Bets {
		if _, ok := s.betIDs[b.ID]; ok {
			continue
		}
		s.betIDs[b.ID] = struct{}{}
		s.bets = append(s.bets, b)
	}
	for _, e := range cs.BetEvents {
		if _, ok := s.betEvents[e.ID]; !ok {
			s.betEvents[e.ID] = e
		}
	}
	for _, e := range cs.MarketEvents {
		if _, ok := s.eventIDs[e.ID]; ok {
			continue
		}
		s.eventIDs[e.ID] = struct{}{}
		s.marketEvents = append(s.marketEvents, e)
	}
	c := cs.Cursor
	s.cursor = &c
	s.commits++
	return nil
}

// EachMarket implements domain.SnapshotReader in id order.
func (s *Store) EachMarket(ctx context.Context, fn func(domain.Market) error) error {
	ids, _ := s.MarketAddresses(ctx)
	for _, id := range ids {
		m, err := s.Market(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// EachUser implements domain.SnapshotReader in id order.
func (s *Store) EachUser(ctx context.Context, fn func(domain.User) error) error {
	s.mu.RLock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	for _, u := range users {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

// EachPosition implements domain.SnapshotReader in id order.
func (s *Store) EachPosition(ctx context.Context, fn func(domain.Position) error) error {
	s.mu.RLock()
	positions := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, p.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	for _, p := range positions {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.EntityStore    = (*Store)(nil)
	_ domain.SnapshotReader = (*Store)(nil)
)

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

func matchFold(filter, value string) bool {
	return filter == "" || strings.EqualFold(filter, value)
}
