package domain

import "math/big"

// Wei is the fixed-point scale of every on-chain amount and of the odds
// snapshot stored on a Bet.
var Wei = big.NewInt(1_000_000_000_000_000_000)

// HalfWei is 0.5 expressed in Wei fixed point.
var HalfWei = big.NewInt(500_000_000_000_000_000)

// Zero returns a freshly allocated zero value.
func Zero() *big.Int { return new(big.Int) }

// CloneInt returns a deep copy of x. A nil input yields nil.
func CloneInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

// IntOrZero returns x, or a fresh zero when x is nil.
func IntOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

// EqualInt reports whether a and b hold the same value. Two nil values are
// equal; nil and zero are not.
func EqualInt(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}
