package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var (
	testFactory = common.HexToAddress("0x581456618D817a834CBaFC26250c18DEaAC76025")
	testMarket  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testCreator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testBettor  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

// logFactory packs contract logs the way a node returns them.
type logFactory struct {
	t       *testing.T
	factory abi.ABI
	market  abi.ABI
}

func newLogFactory(t *testing.T) *logFactory {
	t.Helper()
	fabi, err := FactoryABI()
	require.NoError(t, err)
	mabi, err := MarketABI()
	require.NoError(t, err)
	return &logFactory{t: t, factory: fabi, market: mabi}
}

func (f *logFactory) pack(ev abi.Event, args ...any) []byte {
	f.t.Helper()
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	require.NoError(f.t, err)
	return data
}

func stamp(lg types.Log, block uint64, index uint) types.Log {
	lg.BlockNumber = block
	lg.Index = index
	lg.TxHash = common.BigToHash(new(big.Int).SetUint64(block<<16 | uint64(index)))
	return lg
}

func (f *logFactory) created(block uint64, index uint, id int64, market common.Address, resolution int64) types.Log {
	ev := f.factory.Events["MarketCreated"]
	return stamp(types.Log{
		Address: testFactory,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(id)),
			common.BytesToHash(market.Bytes()),
			common.BytesToHash(testCreator.Bytes()),
		},
		Data: f.pack(ev, "Will it rain tomorrow?", "other", big.NewInt(resolution)),
	}, block, index)
}

func (f *logFactory) resolved(block uint64, index uint, id int64, market common.Address, outcome uint8) types.Log {
	ev := f.factory.Events["MarketResolved"]
	return stamp(types.Log{
		Address: testFactory,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(id)),
			common.BytesToHash(market.Bytes()),
		},
		Data: f.pack(ev, outcome),
	}, block, index)
}

func (f *logFactory) bet(block uint64, index uint, market common.Address, outcome uint8, amount, shares int64) types.Log {
	ev := f.market.Events["BetPlaced"]
	return stamp(types.Log{
		Address: market,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(testBettor.Bytes()),
			common.BigToHash(big.NewInt(int64(outcome))),
		},
		Data: f.pack(ev, big.NewInt(amount), big.NewInt(shares)),
	}, block, index)
}

func (f *logFactory) claimed(block uint64, index uint, market common.Address, amount int64) types.Log {
	ev := f.market.Events["Claimed"]
	return stamp(types.Log{
		Address: market,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(testBettor.Bytes()),
		},
		Data: f.pack(ev, big.NewInt(amount)),
	}, block, index)
}
