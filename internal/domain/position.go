package domain

import (
	"math/big"
	"time"
)

// Position is a user's aggregate stake on one side of one market. A user who
// bets both sides holds two independent positions.
type Position struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Market    string    `json:"market"`
	Outcome   Outcome   `json:"outcome"`
	Amount    *big.Int  `json:"amount"`
	Shares    *big.Int  `json:"shares"`
	Claimed   bool      `json:"claimed"`
	PnL       *big.Int  `json:"pnl"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of p.
func (p Position) Clone() Position {
	out := p
	out.Amount = CloneInt(p.Amount)
	out.Shares = CloneInt(p.Shares)
	out.PnL = CloneInt(p.PnL)
	return out
}

// PositionView joins a position with the market it belongs to.
type PositionView struct {
	Position
	MarketInfo Market `json:"marketInfo"`
}
