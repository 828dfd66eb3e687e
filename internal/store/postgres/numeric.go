package postgres

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// numeric encodes x for a NUMERIC column. A nil x is SQL NULL.
func numeric(x *big.Int) pgtype.Numeric {
	if x == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(x), Valid: true}
}

// bigFromNumeric decodes an integral NUMERIC. NULL decodes to nil.
func bigFromNumeric(n pgtype.Numeric) (*big.Int, error) {
	if !n.Valid {
		return nil, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("postgres: numeric is not finite")
	}
	out := new(big.Int)
	if n.Int != nil {
		out.Set(n.Int)
	}
	switch {
	case n.Exp > 0:
		out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
		var rem big.Int
		out.QuoRem(out, div, &rem)
		if rem.Sign() != 0 {
			return nil, fmt.Errorf("postgres: numeric %s has a fractional part", n.Int)
		}
	}
	return out, nil
}

// numFields collects NUMERIC scan targets and decodes them into *big.Int
// fields once the row has been scanned.
type numFields []*numField

type numField struct {
	n   pgtype.Numeric
	dst **big.Int
}

func (f *numFields) into(dst **big.Int) *pgtype.Numeric {
	nf := &numField{dst: dst}
	*f = append(*f, nf)
	return &nf.n
}

func (f numFields) decode() error {
	for _, nf := range f {
		v, err := bigFromNumeric(nf.n)
		if err != nil {
			return err
		}
		*nf.dst = v
	}
	return nil
}
