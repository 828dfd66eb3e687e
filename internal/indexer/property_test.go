package indexer

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/stretchr/testify/require"
)

var bettors = []string{userA, userB, userC, "0x000000000000000000000000000000000000000d"}

// randomStream builds a causally valid stream: markets are created before
// any bet on them and resolved at most once, after their bets.
func randomStream(rng *rand.Rand, markets, bets int) []domain.Event {
	sim := newChainSim()
	addrs := []string{marketM, marketN, "0x00000000000000000000000000000000000000cc"}[:markets]

	var events []domain.Event
	for i, m := range addrs {
		events = append(events, sim.created(m, int64(i+1)))
	}
	for i := 0; i < bets; i++ {
		if rng.Intn(3) == 0 {
			sim.mine(uint64(rng.Intn(40_000)))
		}
		m := addrs[rng.Intn(len(addrs))]
		u := bettors[rng.Intn(len(bettors))]
		o := domain.Outcome(rng.Intn(2))
		amount := int64(rng.Intn(1_000) + 1)
		shares := int64(rng.Intn(1_000) + 1)
		events = append(events, sim.bet(m, u, o, amount, shares))
	}
	sim.mine(12)
	for i, m := range addrs {
		if rng.Intn(4) != 0 {
			events = append(events, sim.resolved(m, int64(i+1), domain.Outcome(rng.Intn(2))))
		}
	}
	return events
}

func TestPoolsAndVolumeEqualBetSums(t *testing.T) {
	ctx := context.Background()
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		events := randomStream(rng, 3, 60)

		ix, st := newTestIndexer(t, true)
		_, err := ix.ApplyBatch(ctx, events)
		require.NoError(t, err, "seed %d", seed)

		volume := map[string]*big.Int{}
		shares := map[string]*big.Int{}
		total := new(big.Int)
		for _, ev := range events {
			b, ok := ev.(domain.BetPlaced)
			if !ok {
				continue
			}
			if volume[b.Address] == nil {
				volume[b.Address], shares[b.Address] = new(big.Int), new(big.Int)
			}
			volume[b.Address].Add(volume[b.Address], b.Amount)
			shares[b.Address].Add(shares[b.Address], b.Shares)
			total.Add(total, b.Amount)
		}

		for addr, v := range volume {
			m, err := st.Market(ctx, addr)
			require.NoError(t, err)
			require.Equal(t, v.String(), m.TotalVolume.String(), "seed %d market %s", seed, addr)
			require.Equal(t, shares[addr].String(), m.TotalPool().String(), "seed %d market %s", seed, addr)
		}

		g, err := st.GetGlobalStats(ctx)
		require.NoError(t, err)
		require.Equal(t, total.String(), g.TotalVolume.String())
	}
}

func TestResolutionPnLFollowsPoolsAtResolution(t *testing.T) {
	ctx := context.Background()
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		events := randomStream(rng, 2, 40)

		ix, st := newTestIndexer(t, true)
		_, err := ix.ApplyBatch(ctx, events)
		require.NoError(t, err)

		lost := map[string]*big.Int{}
		require.NoError(t, st.EachMarket(ctx, func(m domain.Market) error {
			for _, id := range m.PositionIDs {
				p, err := st.Position(ctx, id)
				require.NoError(t, err)
				if m.Result == nil {
					require.Nil(t, p.PnL, "unresolved position %s", id)
					continue
				}
				if p.Outcome == *m.Result {
					winning := m.Pool(*m.Result)
					want := new(big.Int).Mul(p.Shares, m.TotalPool())
					want.Quo(want, winning)
					want.Sub(want, p.Amount)
					require.Equal(t, want.String(), p.PnL.String(), "seed %d winner %s", seed, id)
				} else {
					require.Equal(t, new(big.Int).Neg(p.Amount).String(), p.PnL.String(), "seed %d loser %s", seed, id)
					if lost[p.User] == nil {
						lost[p.User] = new(big.Int)
					}
					lost[p.User].Add(lost[p.User], p.Amount)
				}
			}
			return nil
		}))

		require.NoError(t, st.EachUser(ctx, func(u domain.User) error {
			want := lost[u.ID]
			if want == nil {
				want = new(big.Int)
			}
			require.Equal(t, want.String(), u.TotalLost.String(), "seed %d user %s", seed, u.ID)
			return nil
		}))
	}
}

func TestReindexFromGenesisIsDeterministic(t *testing.T) {
	ctx := context.Background()
	for seed := int64(1); seed <= 10; seed++ {
		events := randomStream(rand.New(rand.NewSource(seed)), 3, 50)

		ix1, st1 := newTestIndexer(t, true)
		_, err := ix1.ApplyBatch(ctx, events)
		require.NoError(t, err)

		// One event per commit must converge to the same state as one batch.
		ix2, st2 := newTestIndexer(t, true)
		for _, ev := range events {
			require.NoError(t, ix2.Apply(ctx, ev))
		}
		require.Equal(t, snapshotJSON(t, st1), snapshotJSON(t, st2), "seed %d", seed)
	}
}

// FuzzOutOfOrderInjection feeds permutations of a valid stream. With restamp
// the permuted events get fresh increasing positions, so causality breaks
// (bets before creation, claims before resolution) while ordering holds.
// Without it the original positions are kept and late arrivals fall behind
// the cursor. Either way no event may panic, every rejected event must
// leave the entities untouched, and the aggregates must equal the sums of
// the bets that were applied.
func FuzzOutOfOrderInjection(f *testing.F) {
	f.Add(int64(1), true)
	f.Add(int64(2), false)
	f.Add(int64(42), true)
	f.Add(int64(7), false)

	f.Fuzz(func(t *testing.T, seed int64, restamp bool) {
		ctx := context.Background()
		rng := rand.New(rand.NewSource(seed))
		events := randomStream(rng, 2, 20)
		sim := newChainSim()
		for i := 0; i < 4; i++ {
			m := []string{marketM, marketN}[rng.Intn(2)]
			events = append(events, sim.claimed(m, bettors[rng.Intn(len(bettors))], int64(rng.Intn(100))))
		}
		rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

		if restamp {
			stamp := newChainSim()
			for i, ev := range events {
				events[i] = withMeta(ev, stamp.meta(ev.Header().Address))
			}
		}

		ix, st := newTestIndexer(t, false)
		volume := map[string]*big.Int{}
		for _, ev := range events {
			before := snapshotJSON(t, st)
			err := ix.Apply(ctx, ev)
			if err != nil {
				var ie *domain.IndexError
				require.ErrorAs(t, err, &ie)
				require.Equal(t, before, snapshotJSON(t, st), "rejected %s changed state", ev.Kind())
				continue
			}
			if b, ok := ev.(domain.BetPlaced); ok {
				if volume[b.Address] == nil {
					volume[b.Address] = new(big.Int)
				}
				volume[b.Address].Add(volume[b.Address], b.Amount)
			}
		}

		require.NoError(t, st.EachMarket(ctx, func(m domain.Market) error {
			want := volume[m.ID]
			if want == nil {
				want = new(big.Int)
			}
			require.Equal(t, want.String(), m.TotalVolume.String())
			return nil
		}))
	})
}

func withMeta(ev domain.Event, meta domain.EventMeta) domain.Event {
	switch e := ev.(type) {
	case domain.MarketCreated:
		e.EventMeta = meta
		return e
	case domain.MarketResolved:
		e.EventMeta = meta
		return e
	case domain.BetPlaced:
		e.EventMeta = meta
		return e
	case domain.Claimed:
		e.EventMeta = meta
		return e
	}
	return ev
}
