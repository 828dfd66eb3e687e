package domain

import "math/big"

// User aggregates every bet, resolution and claim of one address. All
// counters only grow; PnL is signed and moves in both directions.
type User struct {
	ID           string   `json:"id"`
	TotalBets    int64    `json:"totalBets"`
	TotalWagered *big.Int `json:"totalWagered"`
	TotalWon     *big.Int `json:"totalWon"`
	TotalLost    *big.Int `json:"totalLost"`
	PnL          *big.Int `json:"pnl"`
	WinCount     int64    `json:"winCount"`
	LossCount    int64    `json:"lossCount"`
}

// NewUser returns a zeroed user for address id.
func NewUser(id string) User {
	return User{
		ID:           id,
		TotalWagered: Zero(),
		TotalWon:     Zero(),
		TotalLost:    Zero(),
		PnL:          Zero(),
	}
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	out := u
	out.TotalWagered = CloneInt(u.TotalWagered)
	out.TotalWon = CloneInt(u.TotalWon)
	out.TotalLost = CloneInt(u.TotalLost)
	out.PnL = CloneInt(u.PnL)
	return out
}
