package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// memBlobs is an in-memory BlobStore.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memBlobs) Delete(_ context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

func bet(block uint64, idx uint) domain.BetPlaced {
	return domain.BetPlaced{
		EventMeta: domain.EventMeta{Address: "0xm", Block: block, LogIndex: idx, Timestamp: 1000 + block, TxHash: "0xtx"},
		Bettor:    "0xu",
		Outcome:   domain.OutcomeYes,
		Amount:    big.NewInt(int64(block)),
		Shares:    big.NewInt(int64(block)),
	}
}

func TestBatchKeyOrdering(t *testing.T) {
	a := NewEventArchive(newMemBlobs(), 4613)
	require.Equal(t, "events/4613/000000000009-000000000010.jsonl", a.BatchKey(9, 10))
	require.Less(t, a.BatchKey(9, 10), a.BatchKey(100, 120))

	from, to, ok := parseBatchKey(a.BatchKey(100, 120))
	require.True(t, ok)
	require.Equal(t, uint64(100), from)
	require.Equal(t, uint64(120), to)

	_, _, ok = parseBatchKey("events/4613/readme.txt")
	require.False(t, ok)
}

func TestArchiveReplay(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewEventArchive(blobs, 1)

	require.NoError(t, a.Append(ctx, domain.EventBatch{From: 100, To: 199, Events: []domain.Event{bet(150, 0), bet(150, 1)}}))
	require.NoError(t, a.Append(ctx, domain.EventBatch{From: 200, To: 299}))
	require.NoError(t, a.Append(ctx, domain.EventBatch{From: 1, To: 99, Events: []domain.Event{bet(5, 3)}}))
	require.NoError(t, a.Append(ctx, domain.EventBatch{From: 300, To: 399, Events: []domain.Event{bet(301, 0)}}))
	require.Len(t, blobs.objects, 3)

	var got []domain.Cursor
	err := a.Replay(ctx, 0, func(ev domain.Event) error {
		got = append(got, ev.Header().Cursor())
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		require.True(t, got[i-1].Before(got[i]))
	}

	var blocks []uint64
	err = a.Replay(ctx, 151, func(ev domain.Event) error {
		blocks = append(blocks, ev.Header().Block)
		b := ev.(domain.BetPlaced)
		require.Equal(t, int64(ev.Header().Block), b.Amount.Int64())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{301}, blocks)

	stop := errors.New("stop")
	err = a.Replay(ctx, 0, func(domain.Event) error { return stop })
	require.ErrorIs(t, err, stop)
}

type fakeSnapshotSource struct{}

func (fakeSnapshotSource) EachMarket(_ context.Context, fn func(domain.Market) error) error {
	return fn(domain.Market{ID: "0xm", Status: domain.MarketStatusOpen})
}

func (fakeSnapshotSource) EachUser(_ context.Context, fn func(domain.User) error) error {
	for _, id := range []string{"0xa", "0xb"} {
		if err := fn(domain.NewUser(id)); err != nil {
			return err
		}
	}
	return nil
}

func (fakeSnapshotSource) EachPosition(context.Context, func(domain.Position) error) error {
	return nil
}

type recordingAudit struct {
	events []string
}

func (r *recordingAudit) Log(_ context.Context, event string, _ map[string]any) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestSnapshotter(t *testing.T) {
	blobs := newMemBlobs()
	audit := &recordingAudit{}
	at := time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC)

	counts, err := NewSnapshotter(blobs, fakeSnapshotSource{}, audit, 0).Run(context.Background(), at)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"markets": 1, "users": 2, "positions": 0, "pruned": 0}, counts)
	require.Equal(t, []string{"snapshot.completed"}, audit.events)

	raw := blobs.objects["snapshots/users/2026-03-04.jsonl"]
	sc := bufio.NewScanner(bytes.NewReader(raw))
	var ids []string
	for sc.Scan() {
		var u domain.User
		require.NoError(t, json.Unmarshal(sc.Bytes(), &u))
		ids = append(ids, u.ID)
	}
	require.Equal(t, []string{"0xa", "0xb"}, ids)
	require.Contains(t, blobs.objects, "snapshots/positions/2026-03-04.jsonl")
}

func TestSnapshotPrune(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	for _, k := range []string{
		"snapshots/markets/2026-02-01.jsonl",
		"snapshots/users/2026-02-01.jsonl",
		"snapshots/markets/2026-02-25.jsonl",
		"snapshots/markets/2026-02-26.jsonl",
		"snapshots/markets/notes.txt",
		"events/1/000000000001-000000000002.jsonl",
	} {
		blobs.objects[k] = []byte("{}\n")
	}
	at := time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC)

	n, err := NewSnapshotter(blobs, fakeSnapshotSource{}, nil, 0).Prune(ctx, at)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = NewSnapshotter(blobs, fakeSnapshotSource{}, nil, 7).Prune(ctx, at)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NotContains(t, blobs.objects, "snapshots/users/2026-02-01.jsonl")
	require.Contains(t, blobs.objects, "snapshots/markets/2026-02-25.jsonl")
	require.Contains(t, blobs.objects, "snapshots/markets/notes.txt")
	require.Contains(t, blobs.objects, "events/1/000000000001-000000000002.jsonl")

	counts, err := NewSnapshotter(blobs, fakeSnapshotSource{}, nil, 7).Run(ctx, at.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["pruned"])
}

func TestClientPrefix(t *testing.T) {
	require.Equal(t, "", cleanPrefix(""))
	require.Equal(t, "", cleanPrefix("/"))
	require.Equal(t, "prod/4613/", cleanPrefix("/prod/4613"))

	c := &Client{prefix: cleanPrefix("prod")}
	require.Equal(t, "prod/events/1/a.jsonl", c.key("events/1/a.jsonl"))
	require.Equal(t, "events/1/a.jsonl", c.relative("prod/events/1/a.jsonl"))

	bare := &Client{}
	require.Equal(t, "snapshots/x", bare.key("snapshots/x"))
}

func TestNormaliseEndpoint(t *testing.T) {
	require.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
	require.Equal(t, "https://s3.example", normaliseEndpoint("s3.example", true))
	require.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
}
