package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
	"github.com/alanyoungcy/marketindexer/internal/notify"
	"github.com/alanyoungcy/marketindexer/internal/store/memory"
	"github.com/stretchr/testify/require"
)

const (
	testFactory = "0x581456618d817a834cbafc26250c18deaac76025"
	marketM     = "0x00000000000000000000000000000000000000aa"
	userA       = "0x000000000000000000000000000000000000000a"
	userB       = "0x000000000000000000000000000000000000000b"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndexer(t *testing.T, st *memory.Store, strict bool) *indexer.Indexer {
	t.Helper()
	ix := indexer.New(st, indexer.NewRegistry(testFactory), indexer.Policy{Strict: strict}, discardLogger())
	require.NoError(t, ix.Init(context.Background()))
	return ix
}

func meta(addr string, block uint64, idx uint) domain.EventMeta {
	return domain.EventMeta{
		Address:   addr,
		Block:     block,
		BlockHash: fmt.Sprintf("0x%064x", block),
		Timestamp: 1_700_000_000 + block*2,
		TxHash:    fmt.Sprintf("0x%064x", block<<16|uint64(idx)),
		LogIndex:  idx,
	}
}

func created(block uint64) domain.MarketCreated {
	return domain.MarketCreated{
		EventMeta:      meta(testFactory, block, 0),
		MarketID:       big.NewInt(1),
		Market:         marketM,
		Creator:        userB,
		Question:       "Will ETH flip BTC by 2030?",
		Category:       "crypto",
		ResolutionTime: 1_800_000_000,
	}
}

func bet(block uint64, idx uint, user string, o domain.Outcome, amount int64) domain.BetPlaced {
	return domain.BetPlaced{
		EventMeta: meta(marketM, block, idx),
		Bettor:    user,
		Outcome:   o,
		Amount:    big.NewInt(amount),
		Shares:    big.NewInt(amount),
	}
}

func resolved(block uint64, o domain.Outcome) domain.MarketResolved {
	return domain.MarketResolved{
		EventMeta:      meta(testFactory, block, 0),
		MarketID:       big.NewInt(1),
		Market:         marketM,
		WinningOutcome: o,
	}
}

// fakeSource serves a fixed set of events up to head.
type fakeSource struct {
	mu      sync.Mutex
	head    uint64
	events  []domain.Event
	fetches [][2]uint64
	headErr error
}

func (s *fakeSource) SafeHead(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, s.headErr
}

func (s *fakeSource) FetchRange(_ context.Context, from, to uint64) (domain.EventBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, [2]uint64{from, to})
	batch := domain.EventBatch{From: from, To: to}
	for _, ev := range s.events {
		if b := ev.Header().Block; b >= from && b <= to {
			batch.Events = append(batch.Events, ev)
		}
	}
	return batch, nil
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetches)
}

// memArchive keeps batches in memory.
type memArchive struct {
	mu      sync.Mutex
	batches []domain.EventBatch
	failN   int
}

func (a *memArchive) Append(_ context.Context, batch domain.EventBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failN > 0 {
		a.failN--
		return errors.New("bucket unavailable")
	}
	if len(batch.Events) > 0 {
		a.batches = append(a.batches, batch)
	}
	return nil
}

func (a *memArchive) Replay(ctx context.Context, fromBlock uint64, fn func(domain.Event) error) error {
	a.mu.Lock()
	batches := append([]domain.EventBatch(nil), a.batches...)
	a.mu.Unlock()
	for _, b := range batches {
		for _, ev := range b.Events {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ev.Header().Block < fromBlock {
				continue
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

type published struct {
	channel string
	kind    domain.EventKind
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
	stream    int
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	ev, err := domain.UnmarshalEvent(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{channel: channel, kind: ev.Kind()})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream++
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCache) Set(context.Context, domain.Market) error { return nil }

func (c *fakeCache) Get(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

func (c *fakeCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, a.Event)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// fakeLocks is a single-process LockManager.
type fakeLocks struct {
	mu     sync.Mutex
	holder string
	lost   bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (domain.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" {
		return nil, domain.ErrLockHeld
	}
	l.holder = "test/" + key
	l.lost = false
	return &fakeLease{locks: l}, nil
}

func (l *fakeLocks) Holder(context.Context, string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder, nil
}

// steal hands the lock to another owner.
func (l *fakeLocks) steal(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder = owner
	l.lost = true
}

type fakeLease struct{ locks *fakeLocks }

func (f *fakeLease) Refresh(context.Context) error {
	f.locks.mu.Lock()
	defer f.locks.mu.Unlock()
	if f.locks.lost {
		return domain.ErrLockHeld
	}
	return nil
}

func (f *fakeLease) Release() {
	f.locks.mu.Lock()
	defer f.locks.mu.Unlock()
	if !f.locks.lost {
		f.locks.holder = ""
	}
}

type fakeSnapshotter struct {
	mu   sync.Mutex
	runs []time.Time
	err  error
}

func (s *fakeSnapshotter) Run(_ context.Context, at time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, at)
	return map[string]int64{"markets": 1}, s.err
}
