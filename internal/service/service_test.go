package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
	"github.com/alanyoungcy/marketindexer/internal/store/memory"
	"github.com/stretchr/testify/require"
)

const (
	factory = "0x581456618d817a834cbafc26250c18deaac76025"
	marketM = "0x00000000000000000000000000000000000000aa"
	userA   = "0x000000000000000000000000000000000000000a"
	userB   = "0x000000000000000000000000000000000000000b"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func meta(addr string, block uint64) domain.EventMeta {
	return domain.EventMeta{
		Address:   addr,
		Block:     block,
		BlockHash: fmt.Sprintf("0x%064x", block),
		Timestamp: 1_700_000_000 + block*86_400,
		TxHash:    fmt.Sprintf("0x%064x", block),
	}
}

// seeded returns a store holding one resolved market with two bettors.
func seeded(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.New()
	ix := indexer.New(st, indexer.NewRegistry(factory), indexer.Policy{Strict: true}, discardLogger())
	_, err := ix.ApplyBatch(context.Background(), []domain.Event{
		domain.MarketCreated{
			EventMeta: meta(factory, 1), MarketID: big.NewInt(1), Market: marketM,
			Creator: userB, Question: "Will it rain in Lisbon tomorrow?", Category: "Other", ResolutionTime: 1_900_000_000,
		},
		domain.BetPlaced{EventMeta: meta(marketM, 2), Bettor: userA, Outcome: domain.OutcomeYes, Amount: big.NewInt(30), Shares: big.NewInt(30)},
		domain.BetPlaced{EventMeta: meta(marketM, 3), Bettor: userB, Outcome: domain.OutcomeNo, Amount: big.NewInt(10), Shares: big.NewInt(10)},
		domain.MarketResolved{EventMeta: meta(factory, 4), MarketID: big.NewInt(1), Market: marketM, WinningOutcome: domain.OutcomeYes},
	})
	require.NoError(t, err)
	return st
}

type countingCache struct {
	markets map[string]domain.Market
	gets    int
	sets    int
}

func (c *countingCache) Set(_ context.Context, m domain.Market) error {
	c.sets++
	c.markets[m.ID] = m
	return nil
}

func (c *countingCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.gets++
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *countingCache) Invalidate(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(c.markets, id)
	}
	return nil
}

func TestPage(t *testing.T) {
	opts, err := Page(0, 0)
	require.NoError(t, err)
	require.Equal(t, domain.ListOpts{Limit: DefaultLimit}, opts)

	opts, err = Page(100, 40)
	require.NoError(t, err)
	require.Equal(t, domain.ListOpts{Limit: 100, Offset: 40}, opts)

	for _, tc := range [][2]int{{101, 0}, {-1, 0}, {10, -1}} {
		_, err := Page(tc[0], tc[1])
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestGetMarketReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	cache := &countingCache{markets: map[string]domain.Market{}}
	svc := NewMarketService(seeded(t), cache, discardLogger())

	m, err := svc.GetMarket(ctx, "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	require.Equal(t, marketM, m.ID)
	require.Equal(t, 1, cache.sets)

	_, err = svc.GetMarket(ctx, marketM)
	require.NoError(t, err)
	require.Equal(t, 2, cache.gets)
	require.Equal(t, 1, cache.sets)

	_, err = svc.GetMarket(ctx, "0xdead")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetMarketWithoutCache(t *testing.T) {
	svc := NewMarketService(seeded(t), nil, discardLogger())
	m, err := svc.GetMarket(context.Background(), marketM)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusResolved, m.Status)
}

func TestListMarketsFilters(t *testing.T) {
	ctx := context.Background()
	svc := NewMarketService(seeded(t), nil, discardLogger())

	got, err := svc.ListMarkets(ctx, domain.MarketFilter{Status: "resolved", Category: "other"}, domain.ListOpts{Limit: 20})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = svc.ListMarkets(ctx, domain.MarketFilter{Status: "open"}, domain.ListOpts{Limit: 20})
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = svc.ListMarkets(ctx, domain.MarketFilter{Status: "closed"}, domain.ListOpts{Limit: 20})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	bets, err := svc.ListBets(ctx, marketM, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, bets, 1)
	require.Equal(t, userB, bets[0].User)

	events, err := svc.ListEvents(ctx, marketM, domain.ListOpts{Limit: 20})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestUserServiceLeaderboard(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(seeded(t), discardLogger())

	top, err := svc.Leaderboard(ctx, "", domain.ListOpts{Limit: 20})
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, userA, top[0].ID)

	_, err = svc.Leaderboard(ctx, "luck", domain.ListOpts{Limit: 20})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	u, err := svc.GetUser(ctx, "0x000000000000000000000000000000000000000A")
	require.NoError(t, err)
	require.Equal(t, "10", u.PnL.String())

	views, err := svc.ListPositions(ctx, userA, true, domain.ListOpts{Limit: 20})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, marketM, views[0].MarketInfo.ID)

	bets, err := svc.ListBets(ctx, userA, domain.ListOpts{Limit: 20})
	require.NoError(t, err)
	require.Len(t, bets, 1)
}

func TestStatsService(t *testing.T) {
	ctx := context.Background()
	svc := NewStatsService(seeded(t))

	g, err := svc.Global(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), g.TotalMarkets)
	require.Equal(t, int64(2), g.TotalBets)

	days, err := svc.Daily(ctx, 0)
	require.NoError(t, err)
	require.Len(t, days, 3)

	_, err = svc.Daily(ctx, MaxDays+1)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
