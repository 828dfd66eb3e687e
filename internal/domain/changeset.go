package domain

import "sort"

// DailyUser marks a user as active on a given day bucket.
type DailyUser struct {
	DayID  string
	UserID string
}

// Changeset is every write produced by applying one event. Stores persist a
// changeset and its Cursor atomically.
type Changeset struct {
	Markets      map[string]Market
	Users        map[string]User
	Positions    map[string]Position
	Global       *GlobalStats
	Daily        map[string]DailyStats
	DailyUsers   []DailyUser
	Bets         []Bet
	BetEvents    []BetEvent
	MarketEvents []MarketEvent
	Cursor       Cursor
}

// NewChangeset returns an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{
		Markets:   make(map[string]Market),
		Users:     make(map[string]User),
		Positions: make(map[string]Position),
		Daily:     make(map[string]DailyStats),
	}
}

// Empty reports whether the changeset carries no entity writes.
func (c *Changeset) Empty() bool {
	return len(c.Markets) == 0 && len(c.Users) == 0 && len(c.Positions) == 0 &&
		c.Global == nil && len(c.Daily) == 0 && len(c.DailyUsers) == 0 &&
		len(c.Bets) == 0 && len(c.BetEvents) == 0 && len(c.MarketEvents) == 0
}

// MarketIDs returns the touched market ids in sorted order.
func (c *Changeset) MarketIDs() []string {
	return sortedKeys(c.Markets)
}

// UserIDs returns the touched user ids in sorted order.
func (c *Changeset) UserIDs() []string {
	return sortedKeys(c.Users)
}

// PositionIDs returns the touched position ids in sorted order.
func (c *Changeset) PositionIDs() []string {
	return sortedKeys(c.Positions)
}

// DailyIDs returns the touched day buckets in sorted order.
func (c *Changeset) DailyIDs() []string {
	return sortedKeys(c.Daily)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
