package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/notify"
	"github.com/alanyoungcy/marketindexer/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func lifecycle() []domain.Event {
	return []domain.Event{
		created(10),
		bet(11, 0, userA, domain.OutcomeYes, 30),
		bet(11, 1, userB, domain.OutcomeNo, 10),
		resolved(12, domain.OutcomeYes),
	}
}

func TestIngestorCatchUpFansOut(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ix := newTestIndexer(t, st, true)
	src := &fakeSource{head: 12, events: lifecycle()}
	arch := &memArchive{}
	bus := &fakeBus{}
	cache := &fakeCache{}
	nt := &fakeNotifier{}

	in := NewIngestor(src, ix, arch, bus, cache, nt,
		IngestorConfig{StartBlock: 10, BatchSize: 2, PollInterval: time.Second}, discardLogger())
	in.resume()

	require.NoError(t, in.CatchUp(ctx))
	require.Equal(t, [][2]uint64{{10, 11}, {12, 12}}, src.fetches)
	require.Equal(t, uint64(0), in.Lag())
	require.Equal(t, uint64(12), in.Head())

	m, err := st.Market(ctx, marketM)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusResolved, m.Status)
	require.Equal(t, "40", m.TotalVolume.String())

	require.Len(t, arch.batches, 2)
	require.Equal(t, []published{
		{domain.ChannelMarkets, domain.KindMarketCreated},
		{domain.ChannelBets, domain.KindBetPlaced},
		{domain.ChannelBets, domain.KindBetPlaced},
		{domain.ChannelResolutions, domain.KindMarketResolved},
	}, bus.published)
	require.Equal(t, 4, bus.stream)
	require.Contains(t, cache.invalidated, marketM)
	require.Equal(t, []string{notify.EventMarketCreated, notify.EventMarketResolved}, nt.sent())

	more, err := in.Step(ctx)
	require.NoError(t, err)
	require.False(t, more)
	require.Len(t, src.fetches, 2)
}

func TestIngestorArchiveFailureRetriesRange(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ix := newTestIndexer(t, st, true)
	src := &fakeSource{head: 12, events: lifecycle()}
	arch := &memArchive{failN: 1}

	in := NewIngestor(src, ix, arch, nil, nil, nil, IngestorConfig{StartBlock: 10, BatchSize: 10}, discardLogger())
	in.resume()

	_, err := in.Step(ctx)
	require.ErrorContains(t, err, "bucket unavailable")
	require.Nil(t, ix.Cursor())

	more, err := in.Step(ctx)
	require.NoError(t, err)
	require.False(t, more)
	require.Equal(t, [][2]uint64{{10, 12}, {10, 12}}, src.fetches)
	require.Equal(t, uint64(12), ix.Cursor().Block)
	require.Equal(t, 1, st.Commits())
}

func TestIngestorResumeRefetchesCursorBlock(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ix := newTestIndexer(t, st, true)
	src := &fakeSource{head: 11, events: lifecycle()}

	first := NewIngestor(src, ix, nil, nil, nil, nil, IngestorConfig{StartBlock: 10, BatchSize: 100}, discardLogger())
	first.resume()
	require.NoError(t, first.CatchUp(ctx))
	before, err := st.User(ctx, userA)
	require.NoError(t, err)

	restarted := newTestIndexer(t, st, true)
	src.head = 12
	bus := &fakeBus{}
	second := NewIngestor(src, restarted, nil, bus, nil, nil, IngestorConfig{StartBlock: 10, BatchSize: 100}, discardLogger())
	second.resume()
	require.NoError(t, second.CatchUp(ctx))

	require.Equal(t, [2]uint64{11, 12}, src.fetches[len(src.fetches)-1])
	require.Equal(t, []published{{domain.ChannelResolutions, domain.KindMarketResolved}}, bus.published)

	after, err := st.User(ctx, userA)
	require.NoError(t, err)
	require.Equal(t, before.TotalBets, after.TotalBets)
	require.Equal(t, before.TotalWagered.String(), after.TotalWagered.String())
}

func TestIngestorRunHaltsOnStrictError(t *testing.T) {
	st := memory.New()
	ix := newTestIndexer(t, st, true)
	src := &fakeSource{head: 11, events: []domain.Event{bet(11, 0, userA, domain.OutcomeYes, 5)}}
	nt := &fakeNotifier{}

	in := NewIngestor(src, ix, nil, nil, nil, nt, IngestorConfig{StartBlock: 10, PollInterval: time.Hour}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := in.Run(ctx)
	require.ErrorIs(t, err, domain.ErrMarketNotFound)
	require.Equal(t, []string{notify.EventError}, nt.sent())
}

func TestIngestorLenientSkipsAndContinues(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ix := newTestIndexer(t, st, false)
	events := append([]domain.Event{bet(9, 0, userA, domain.OutcomeYes, 5)}, lifecycle()...)
	src := &fakeSource{head: 12, events: events}

	in := NewIngestor(src, ix, nil, nil, nil, nil, IngestorConfig{StartBlock: 9, BatchSize: 100}, discardLogger())
	in.resume()
	require.NoError(t, in.CatchUp(ctx))
	require.Equal(t, uint64(1), ix.Status().Skipped[domain.ErrMarketNotFound.Error()])

	m, err := st.Market(ctx, marketM)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusResolved, m.Status)
}

func TestIngestorRunRecoversFromSourceError(t *testing.T) {
	st := memory.New()
	ix := newTestIndexer(t, st, true)
	src := &fakeSource{head: 12, events: lifecycle(), headErr: errors.New("rpc down")}

	in := NewIngestor(src, ix, nil, nil, nil, nil,
		IngestorConfig{StartBlock: 10, PollInterval: 10 * time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	src.mu.Lock()
	src.headErr = nil
	src.mu.Unlock()
	in.Trigger()

	require.Eventually(t, func() bool {
		c := ix.Cursor()
		return c != nil && c.Block == 12
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestStandbyReplicaReloadsCursorOnTakeover(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	leader := newTestIndexer(t, st, true)
	standby := newTestIndexer(t, st, true)
	src := &fakeSource{head: 11, events: lifecycle()}

	first := NewIngestor(src, leader, nil, nil, nil, nil, IngestorConfig{StartBlock: 10, BatchSize: 100}, discardLogger())
	first.resume()
	require.NoError(t, first.CatchUp(ctx))
	require.Nil(t, standby.Cursor())

	src.mu.Lock()
	src.head = 12
	src.mu.Unlock()
	second := NewIngestor(src, standby, nil, nil, nil, nil,
		IngestorConfig{StartBlock: 10, BatchSize: 100, PollInterval: time.Hour}, discardLogger())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- second.Run(runCtx) }()

	require.Eventually(t, func() bool {
		c := standby.Cursor()
		return c != nil && c.Block == 12
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.True(t, standby.Registry().Contains(marketM))
	require.Equal(t, [2]uint64{11, 12}, src.fetches[len(src.fetches)-1])

	m, err := st.Market(ctx, marketM)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusResolved, m.Status)
	require.Equal(t, "40", m.TotalVolume.String())
	require.Equal(t, "30", m.YesPool.String())

	u, err := st.User(ctx, userA)
	require.NoError(t, err)
	require.Equal(t, int64(1), u.TotalBets)
}

func TestStaleIndexerCannotOverwriteNewerCommit(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	leader := newTestIndexer(t, st, true)
	stale := newTestIndexer(t, st, false)

	_, err := leader.ApplyBatch(ctx, lifecycle()[:3])
	require.NoError(t, err)

	_, err = stale.ApplyBatch(ctx, lifecycle()[:3])
	require.ErrorIs(t, err, domain.ErrOutOfOrder)

	m, err := st.Market(ctx, marketM)
	require.NoError(t, err)
	require.Equal(t, "40", m.TotalVolume.String())
	require.Equal(t, 1, st.Commits())
}

func TestReplayRebuildsIdenticalState(t *testing.T) {
	ctx := context.Background()
	live := memory.New()
	ix := newTestIndexer(t, live, true)
	src := &fakeSource{head: 12, events: lifecycle()}
	arch := &memArchive{}

	in := NewIngestor(src, ix, arch, nil, nil, nil, IngestorConfig{StartBlock: 10, BatchSize: 1}, discardLogger())
	in.resume()
	require.NoError(t, in.CatchUp(ctx))

	rebuilt := memory.New()
	rx := newTestIndexer(t, rebuilt, true)
	applied, skipped, err := NewReplayer(arch, 2, discardLogger()).Rebuild(ctx, rx)
	require.NoError(t, err)
	require.Equal(t, 4, applied)
	require.Zero(t, skipped)
	require.Equal(t, ix.Cursor(), rx.Cursor())

	diffs, err := Verify(ctx, rebuilt, live)
	require.NoError(t, err)
	require.Empty(t, diffs)

	// Replaying again from the cursor is a no-op.
	applied, _, err = NewReplayer(arch, 2, discardLogger()).Rebuild(ctx, rx)
	require.NoError(t, err)
	require.Zero(t, applied)
}

func TestVerifyReportsDiffs(t *testing.T) {
	ctx := context.Background()
	want := memory.New()
	wix := newTestIndexer(t, want, true)
	_, err := wix.ApplyBatch(ctx, lifecycle())
	require.NoError(t, err)

	got := memory.New()
	gix := newTestIndexer(t, got, true)
	_, err = gix.ApplyBatch(ctx, lifecycle()[:2])
	require.NoError(t, err)

	diffs, err := Verify(ctx, want, got)
	require.NoError(t, err)

	byKind := map[string][]string{}
	for _, d := range diffs {
		byKind[d.Kind] = append(byKind[d.Kind], d.ID)
	}
	require.Equal(t, []string{marketM}, byKind["market"])
	require.ElementsMatch(t, []string{userA, userB}, byKind["user"])
	require.Len(t, byKind["position"], 2)

	for _, d := range diffs {
		if d.Kind == "position" && d.Got == nil {
			require.NotNil(t, d.Want)
		}
	}
}

func TestOrchestratorStandsByWhileLockHeld(t *testing.T) {
	st := memory.New()
	ix := newTestIndexer(t, st, true)
	src := &fakeSource{head: 12, events: lifecycle()}
	locks := &fakeLocks{holder: "other/replica"}

	in := NewIngestor(src, ix, nil, nil, nil, nil,
		IngestorConfig{StartBlock: 10, PollInterval: 10 * time.Millisecond}, discardLogger())
	o := NewOrchestrator(in, nil, locks, OrchestratorConfig{LockKey: "writer", LockTTL: 30 * time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.False(t, o.Leader())
	require.Zero(t, src.fetchCount())
	holder, err := o.LockHolder(ctx)
	require.NoError(t, err)
	require.Equal(t, "other/replica", holder)

	locks.mu.Lock()
	locks.holder = ""
	locks.mu.Unlock()

	require.Eventually(t, func() bool {
		c := ix.Cursor()
		return o.Leader() && c != nil && c.Block == 12
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.False(t, o.Leader())
}

func TestOrchestratorStepsDownWhenLeaseLost(t *testing.T) {
	st := memory.New()
	ix := newTestIndexer(t, st, true)
	src := &fakeSource{head: 12, events: lifecycle()}
	locks := &fakeLocks{}

	in := NewIngestor(src, ix, nil, nil, nil, nil,
		IngestorConfig{StartBlock: 10, PollInterval: 10 * time.Millisecond}, discardLogger())
	o := NewOrchestrator(in, nil, locks, OrchestratorConfig{LockKey: "writer", LockTTL: 30 * time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, o.Leader, 2*time.Second, 5*time.Millisecond)
	locks.steal("other/replica")
	require.Eventually(t, func() bool { return !o.Leader() }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSnapshotJobRunOnce(t *testing.T) {
	snap := &fakeSnapshotter{}
	job := NewSnapshotJob(snap, discardLogger())
	fixed := time.Date(2026, 5, 1, 4, 0, 0, 0, time.FixedZone("X", 3600))
	job.now = func() time.Time { return fixed }

	require.NoError(t, job.RunOnce(context.Background()))
	require.Len(t, snap.runs, 1)
	require.Equal(t, time.UTC, snap.runs[0].Location())

	snap.err = errors.New("s3 down")
	require.ErrorContains(t, job.RunOnce(context.Background()), "s3 down")
}

func TestSnapshotJobRejectsBadCron(t *testing.T) {
	job := NewSnapshotJob(&fakeSnapshotter{}, discardLogger())
	require.Error(t, job.RunCron(context.Background(), "every day"))
}
