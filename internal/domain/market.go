package domain

import (
	"math/big"
	"slices"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "OPEN"
	MarketStatusResolved MarketStatus = "RESOLVED"
)

// Outcome is a binary market side as emitted by the contracts.
type Outcome uint8

const (
	OutcomeNo  Outcome = 0
	OutcomeYes Outcome = 1
)

// String returns the display label of the outcome.
func (o Outcome) String() string {
	if o == OutcomeYes {
		return "YES"
	}
	return "NO"
}

// Valid reports whether o is one of the two defined sides.
func (o Outcome) Valid() bool { return o == OutcomeNo || o == OutcomeYes }

// MarketOutcomes is the outcome label list every market carries, indexed by
// Outcome.
var MarketOutcomes = [2]string{"NO", "YES"}

// Market is a single prediction market contract and its running aggregates.
// YesPool and NoPool count cumulative shares issued, TotalVolume counts
// cumulative stake.
type Market struct {
	ID             string       `json:"id"`
	MarketID       *big.Int     `json:"marketId"`
	Creator        string       `json:"creator"`
	Question       string       `json:"question"`
	Category       string       `json:"category"`
	Outcomes       [2]string    `json:"outcomes"`
	ResolutionDate time.Time    `json:"resolutionDate"`
	YesPool        *big.Int     `json:"yesPool"`
	NoPool         *big.Int     `json:"noPool"`
	TotalVolume    *big.Int     `json:"totalVolume"`
	Status         MarketStatus `json:"status"`
	Result         *Outcome     `json:"result"`
	CreatedAt      time.Time    `json:"createdAt"`
	ResolvedAt     *time.Time   `json:"resolvedAt"`
	PositionIDs    []string     `json:"positionIds"`
}

// TotalPool returns YesPool + NoPool.
func (m Market) TotalPool() *big.Int {
	return new(big.Int).Add(IntOrZero(m.YesPool), IntOrZero(m.NoPool))
}

// Pool returns the share pool for outcome o.
func (m Market) Pool(o Outcome) *big.Int {
	if o == OutcomeYes {
		return IntOrZero(m.YesPool)
	}
	return IntOrZero(m.NoPool)
}

// HasPosition reports whether id is already tracked on the market.
func (m Market) HasPosition(id string) bool {
	return slices.Contains(m.PositionIDs, id)
}

// Clone returns a deep copy that shares no mutable state with m.
func (m Market) Clone() Market {
	out := m
	out.MarketID = CloneInt(m.MarketID)
	out.YesPool = CloneInt(m.YesPool)
	out.NoPool = CloneInt(m.NoPool)
	out.TotalVolume = CloneInt(m.TotalVolume)
	if m.Result != nil {
		r := *m.Result
		out.Result = &r
	}
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		out.ResolvedAt = &t
	}
	out.PositionIDs = slices.Clone(m.PositionIDs)
	return out
}
