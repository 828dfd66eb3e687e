// Package units converts wei amounts and 1e18 fixed-point odds to and from
// human-readable decimals.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

// weiExponent is the decimal scale of one ether in wei.
const weiExponent = 18

// decimalCtx has enough precision for any uint256 amount and rounds half up.
var decimalCtx = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(100)
	c.Rounding = apd.RoundHalfUp
	return c
}()

func fromWei(wei *big.Int) *apd.Decimal {
	if wei == nil {
		wei = new(big.Int)
	}
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(wei), -weiExponent)
}

// FormatEther renders wei as ether rounded to places fractional digits with
// trailing zeros trimmed, e.g. 1500000000000000000 -> "1.5".
func FormatEther(wei *big.Int, places int32) string {
	var out apd.Decimal
	if _, err := decimalCtx.Quantize(&out, fromWei(wei), -places); err != nil {
		return fromWei(wei).Text('f')
	}
	out.Reduce(&out)
	return out.Text('f')
}

// FormatOdds renders a 1e18 fixed-point probability as a percentage with
// one decimal, e.g. 5e17 -> "50%".
func FormatOdds(odds *big.Int) string {
	pct := fromWei(odds)
	pct.Exponent += 2
	var out apd.Decimal
	if _, err := decimalCtx.Quantize(&out, pct, -1); err != nil {
		return pct.Text('f') + "%"
	}
	out.Reduce(&out)
	return out.Text('f') + "%"
}

// ErrFractionalWei is returned when an ether amount has more than 18
// fractional digits.
var ErrFractionalWei = errors.New("units: amount is finer than 1 wei")

// ParseEther parses a non-negative decimal ether amount into wei.
func ParseEther(s string) (*big.Int, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("units: parse %q: %w", s, err)
	}
	if d.Negative || d.Form != apd.Finite {
		return nil, fmt.Errorf("units: %q is not a non-negative amount", s)
	}
	d.Exponent += weiExponent

	var whole apd.Decimal
	if _, err := decimalCtx.Quantize(&whole, d, 0); err != nil {
		return nil, fmt.Errorf("units: scale %q: %w", s, err)
	}
	if whole.Cmp(d) != 0 {
		return nil, ErrFractionalWei
	}
	return whole.Coeff.MathBigInt(), nil
}
