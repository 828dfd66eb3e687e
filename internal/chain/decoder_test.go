package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDecodeMarketCreated(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)
	f := newLogFactory(t)

	lg := f.created(100, 2, 7, testMarket, 1_800_000_000)
	require.True(t, dec.IsFactoryLog(lg))
	addr, ok := dec.CreatedMarket(lg)
	require.True(t, ok)
	require.Equal(t, testMarket, addr)

	ev, err := dec.Decode(lg, 1_700_000_000)
	require.NoError(t, err)
	mc, ok := ev.(domain.MarketCreated)
	require.True(t, ok)
	require.Equal(t, domain.KindMarketCreated, mc.Kind())
	require.Equal(t, int64(7), mc.MarketID.Int64())
	require.Equal(t, strings.ToLower(testMarket.Hex()), mc.Market)
	require.Equal(t, strings.ToLower(testCreator.Hex()), mc.Creator)
	require.Equal(t, strings.ToLower(testFactory.Hex()), mc.Address)
	require.Equal(t, "Will it rain tomorrow?", mc.Question)
	require.Equal(t, "other", mc.Category)
	require.Equal(t, uint64(1_800_000_000), mc.ResolutionTime)
	require.Equal(t, uint64(100), mc.Block)
	require.Equal(t, uint(2), mc.LogIndex)
	require.Equal(t, uint64(1_700_000_000), mc.Timestamp)
}

func TestDecodeMarketResolved(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)
	f := newLogFactory(t)

	ev, err := dec.Decode(f.resolved(120, 0, 7, testMarket, 1), 1_700_000_500)
	require.NoError(t, err)
	mr := ev.(domain.MarketResolved)
	require.Equal(t, domain.OutcomeYes, mr.WinningOutcome)
	require.Equal(t, strings.ToLower(testMarket.Hex()), mr.Market)
}

func TestDecodeMarketEvents(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)
	f := newLogFactory(t)

	lg := f.bet(110, 4, testMarket, 0, 5, 6)
	require.False(t, dec.IsFactoryLog(lg))
	_, ok := dec.CreatedMarket(lg)
	require.False(t, ok)

	ev, err := dec.Decode(lg, 1_700_000_100)
	require.NoError(t, err)
	bp := ev.(domain.BetPlaced)
	require.Equal(t, domain.OutcomeNo, bp.Outcome)
	require.Equal(t, strings.ToLower(testBettor.Hex()), bp.Bettor)
	require.Equal(t, strings.ToLower(testMarket.Hex()), bp.Address)
	require.Equal(t, int64(5), bp.Amount.Int64())
	require.Equal(t, int64(6), bp.Shares.Int64())

	ev, err = dec.Decode(f.claimed(130, 1, testMarket, 9), 1_700_000_900)
	require.NoError(t, err)
	cl := ev.(domain.Claimed)
	require.Equal(t, strings.ToLower(testBettor.Hex()), cl.Claimer)
	require.Equal(t, int64(9), cl.Amount.Int64())
}

func TestDecodeRejects(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)
	f := newLogFactory(t)

	removed := f.bet(110, 4, testMarket, 1, 5, 6)
	removed.Removed = true
	_, err = dec.Decode(removed, 0)
	require.ErrorIs(t, err, domain.ErrInvalidEvent)

	unknown := f.bet(110, 4, testMarket, 1, 5, 6)
	unknown.Topics[0] = common.HexToHash("0x01")
	_, err = dec.Decode(unknown, 0)
	require.ErrorIs(t, err, domain.ErrUnknownEvent)

	anonymous := f.bet(110, 4, testMarket, 1, 5, 6)
	anonymous.Topics = nil
	_, err = dec.Decode(anonymous, 0)
	require.ErrorIs(t, err, domain.ErrUnknownEvent)

	truncated := f.bet(110, 4, testMarket, 1, 5, 6)
	truncated.Data = truncated.Data[:10]
	_, err = dec.Decode(truncated, 0)
	require.ErrorIs(t, err, domain.ErrInvalidEvent)

	huge := f.created(100, 2, 7, testMarket, 0)
	ev := f.factory.Events["MarketCreated"]
	huge.Data = f.pack(ev, "q", "c", new(big.Int).Lsh(big.NewInt(1), 100))
	_, err = dec.Decode(huge, 0)
	require.ErrorIs(t, err, domain.ErrInvalidEvent)
}
