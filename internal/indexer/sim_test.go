package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/store/memory"
	"github.com/stretchr/testify/require"
)

const (
	testFactory = "0x581456618d817a834cbafc26250c18deaac76025"
	marketM     = "0x00000000000000000000000000000000000000aa"
	marketN     = "0x00000000000000000000000000000000000000bb"
	userA       = "0x000000000000000000000000000000000000000a"
	userB       = "0x000000000000000000000000000000000000000b"
	userC       = "0x000000000000000000000000000000000000000c"
)

// chainSim hands out strictly increasing log positions.
type chainSim struct {
	block    uint64
	logIndex uint
	ts       uint64
}

func newChainSim() *chainSim {
	return &chainSim{block: 4151713, ts: 1_700_000_000}
}

func (c *chainSim) meta(addr string) domain.EventMeta {
	m := domain.EventMeta{
		Address:   addr,
		Block:     c.block,
		BlockHash: fmt.Sprintf("0x%064x", c.block),
		Timestamp: c.ts,
		TxHash:    fmt.Sprintf("0x%064x", c.block<<16|uint64(c.logIndex)),
		LogIndex:  c.logIndex,
	}
	c.logIndex++
	return m
}

func (c *chainSim) mine(seconds uint64) {
	c.block++
	c.logIndex = 0
	c.ts += seconds
}

func (c *chainSim) created(market string, id int64) domain.MarketCreated {
	return domain.MarketCreated{
		EventMeta:      c.meta(testFactory),
		MarketID:       big.NewInt(id),
		Market:         market,
		Creator:        userC,
		Question:       "Will BTC close above 100k this year?",
		Category:       "crypto",
		ResolutionTime: c.ts + 30*domain.SecondsPerDay,
	}
}

func (c *chainSim) bet(market, user string, o domain.Outcome, amount, shares int64) domain.BetPlaced {
	return domain.BetPlaced{
		EventMeta: c.meta(market),
		Bettor:    user,
		Outcome:   o,
		Amount:    big.NewInt(amount),
		Shares:    big.NewInt(shares),
	}
}

func (c *chainSim) resolved(market string, id int64, o domain.Outcome) domain.MarketResolved {
	return domain.MarketResolved{
		EventMeta:      c.meta(testFactory),
		MarketID:       big.NewInt(id),
		Market:         market,
		WinningOutcome: o,
	}
}

func (c *chainSim) claimed(market, user string, amount int64) domain.Claimed {
	return domain.Claimed{
		EventMeta: c.meta(market),
		Claimer:   user,
		Amount:    big.NewInt(amount),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndexer(t *testing.T, strict bool) (*Indexer, *memory.Store) {
	t.Helper()
	st := memory.New()
	ix := New(st, NewRegistry(testFactory), Policy{Strict: strict}, discardLogger())
	require.NoError(t, ix.Init(context.Background()))
	return ix, st
}

func requireInt(t *testing.T, want int64, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, big.NewInt(want).String(), got.String())
}

// entitySnapshot is every derived entity of a store, minus the cursor.
type entitySnapshot struct {
	Markets   []domain.Market
	Users     []domain.User
	Positions []domain.Position
	Global    domain.GlobalStats
	Daily     []domain.DailyStats
	Bets      []domain.Bet
	Events    []domain.MarketEvent
}

func snapshotJSON(t *testing.T, st *memory.Store) string {
	t.Helper()
	ctx := context.Background()
	var snap entitySnapshot

	require.NoError(t, st.EachMarket(ctx, func(m domain.Market) error {
		snap.Markets = append(snap.Markets, m)
		bets, err := st.ListMarketBets(ctx, m.ID, domain.ListOpts{})
		snap.Bets = append(snap.Bets, bets...)
		if err != nil {
			return err
		}
		events, err := st.ListMarketEvents(ctx, m.ID, domain.ListOpts{})
		snap.Events = append(snap.Events, events...)
		return err
	}))
	require.NoError(t, st.EachUser(ctx, func(u domain.User) error {
		snap.Users = append(snap.Users, u)
		return nil
	}))
	require.NoError(t, st.EachPosition(ctx, func(p domain.Position) error {
		snap.Positions = append(snap.Positions, p)
		return nil
	}))
	var err error
	snap.Global, err = st.GetGlobalStats(ctx)
	require.NoError(t, err)
	snap.Daily, err = st.ListDailyStats(ctx, 0)
	require.NoError(t, err)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	return string(data)
}
