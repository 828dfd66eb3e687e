package domain

import (
	"math/big"
	"time"
)

// Bet is the immutable record of a single BetPlaced log. Odds is the pre-trade
// price of the chosen side in Wei fixed point.
type Bet struct {
	ID            string    `json:"id"`
	Market        string    `json:"market"`
	User          string    `json:"user"`
	Outcome       Outcome   `json:"outcome"`
	Amount        *big.Int  `json:"amount"`
	Shares        *big.Int  `json:"shares"`
	Odds          *big.Int  `json:"odds"`
	CreatedAt     time.Time `json:"createdAt"`
	Block         uint64    `json:"block"`
	TxHash        string    `json:"txHash"`
	Claimed       bool      `json:"claimed"`
	ClaimedAmount *big.Int  `json:"claimedAmount"`
}

// MarketEventType names a market lifecycle transition.
type MarketEventType string

const (
	MarketEventCreated  MarketEventType = "CREATED"
	MarketEventResolved MarketEventType = "RESOLVED"
)

// MarketEvent is the immutable log of a market lifecycle transition.
type MarketEvent struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Type      MarketEventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Block     uint64          `json:"block"`
	TxHash    string          `json:"txHash"`
}

// BetEvent is the generic activity-feed row written alongside every Bet.
type BetEvent struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Market    string    `json:"market"`
	Outcome   Outcome   `json:"outcome"`
	Amount    *big.Int  `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Block     uint64    `json:"block"`
	TxHash    string    `json:"txHash"`
}
