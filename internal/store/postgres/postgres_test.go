package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://u:p@db:5432/idx?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "idx"}))
	require.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "001_init.sql", names[0])
}

func TestNumericRoundTrip(t *testing.T) {
	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	for _, x := range []*big.Int{big.NewInt(0), big.NewInt(-42), domain.Wei, huge} {
		got, err := bigFromNumeric(numeric(x))
		require.NoError(t, err)
		require.Zero(t, x.Cmp(got))
	}

	got, err := bigFromNumeric(numeric(nil))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestNumericExponent(t *testing.T) {
	got, err := bigFromNumeric(pgtype.Numeric{Int: big.NewInt(15), Exp: 3, Valid: true})
	require.NoError(t, err)
	require.Equal(t, int64(15000), got.Int64())

	got, err = bigFromNumeric(pgtype.Numeric{Int: big.NewInt(1500), Exp: -2, Valid: true})
	require.NoError(t, err)
	require.Equal(t, int64(15), got.Int64())

	_, err = bigFromNumeric(pgtype.Numeric{Int: big.NewInt(1501), Exp: -2, Valid: true})
	require.Error(t, err)

	_, err = bigFromNumeric(pgtype.Numeric{NaN: true, Valid: true})
	require.Error(t, err)
}

func TestNumFieldsDecode(t *testing.T) {
	var a, b *big.Int
	var nums numFields
	*nums.into(&a) = pgtype.Numeric{Int: big.NewInt(7), Valid: true}
	*nums.into(&b) = pgtype.Numeric{}
	require.NoError(t, nums.decode())
	require.Equal(t, int64(7), a.Int64())
	require.Nil(t, b)
}

func TestAppendPage(t *testing.T) {
	q, args := appendPage("SELECT 1 WHERE a = $1", []any{"x"}, domain.ListOpts{Limit: 10, Offset: 20})
	require.Equal(t, "SELECT 1 WHERE a = $1 LIMIT $2 OFFSET $3", q)
	require.Equal(t, []any{"x", 10, 20}, args)

	q, args = appendPage("SELECT 1", nil, domain.ListOpts{})
	require.Equal(t, "SELECT 1", q)
	require.Empty(t, args)
}

func TestCursorUpsertOnlyAdvances(t *testing.T) {
	require.Contains(t, upsertCursorSQL,
		"WHERE (indexer_cursor.block, indexer_cursor.log_index) < (EXCLUDED.block, EXCLUDED.log_index)")

	c := domain.Cursor{Block: 11, LogIndex: 1}
	require.NoError(t, cursorAdvanced(1, c))
	err := cursorAdvanced(0, c)
	require.ErrorIs(t, err, domain.ErrOutOfOrder)
	require.ErrorContains(t, err, "11:1")
}
