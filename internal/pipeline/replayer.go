package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
)

// Diff is one entity whose replayed state differs from the live store. Want
// or Got is nil when the entity exists on one side only.
type Diff struct {
	Kind string          `json:"kind"`
	ID   string          `json:"id"`
	Want json.RawMessage `json:"want,omitempty"`
	Got  json.RawMessage `json:"got,omitempty"`
}

// Replayer rebuilds entity state from an event archive.
type Replayer struct {
	archive   domain.EventArchive
	batchSize int
	logger    *slog.Logger
}

// NewReplayer creates a Replayer that applies events in batches of batchSize.
func NewReplayer(archive domain.EventArchive, batchSize int, logger *slog.Logger) *Replayer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Replayer{
		archive:   archive,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "replayer")),
	}
}

// Rebuild feeds every archived event after ix's cursor through ix. It returns
// the number of applied and skipped events.
func (r *Replayer) Rebuild(ctx context.Context, ix *indexer.Indexer) (applied, skipped int, err error) {
	var from uint64
	if c := ix.Cursor(); c != nil {
		from = c.Block
	}

	buf := make([]domain.Event, 0, r.batchSize)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		res, err := ix.ApplyBatch(ctx, buf)
		applied += len(res.Applied)
		skipped += len(res.Skipped)
		buf = buf[:0]
		return err
	}

	err = r.archive.Replay(ctx, from, func(ev domain.Event) error {
		buf = append(buf, ev)
		if len(buf) < r.batchSize {
			return nil
		}
		return flush()
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return applied, skipped, fmt.Errorf("pipeline: replay from %d: %w", from, err)
	}

	r.logger.Info("replay finished",
		slog.Uint64("from_block", from),
		slog.Int("applied", applied),
		slog.Int("skipped", skipped),
	)
	return applied, skipped, nil
}

// Verify compares every market, user and position in want against got.
func Verify(ctx context.Context, want, got domain.SnapshotReader) ([]Diff, error) {
	var diffs []Diff

	compare := func(kind string, each func(domain.SnapshotReader, func(id string, v any) error) error) error {
		a, err := encodeAll(want, each)
		if err != nil {
			return fmt.Errorf("pipeline: verify %s: %w", kind, err)
		}
		b, err := encodeAll(got, each)
		if err != nil {
			return fmt.Errorf("pipeline: verify %s: %w", kind, err)
		}
		diffs = append(diffs, diffMaps(kind, a, b)...)
		return nil
	}

	if err := compare("market", func(s domain.SnapshotReader, fn func(string, any) error) error {
		return s.EachMarket(ctx, func(m domain.Market) error { return fn(m.ID, m) })
	}); err != nil {
		return nil, err
	}
	if err := compare("user", func(s domain.SnapshotReader, fn func(string, any) error) error {
		return s.EachUser(ctx, func(u domain.User) error { return fn(u.ID, u) })
	}); err != nil {
		return nil, err
	}
	if err := compare("position", func(s domain.SnapshotReader, fn func(string, any) error) error {
		return s.EachPosition(ctx, func(p domain.Position) error { return fn(p.ID, p) })
	}); err != nil {
		return nil, err
	}
	return diffs, nil
}

func encodeAll(s domain.SnapshotReader, each func(domain.SnapshotReader, func(string, any) error) error) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := each(s, func(id string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[id] = b
		return nil
	})
	return out, err
}

func diffMaps(kind string, want, got map[string][]byte) []Diff {
	ids := make(map[string]struct{}, len(want)+len(got))
	for id := range want {
		ids[id] = struct{}{}
	}
	for id := range got {
		ids[id] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var diffs []Diff
	for _, id := range sorted {
		w, g := want[id], got[id]
		if bytes.Equal(w, g) {
			continue
		}
		diffs = append(diffs, Diff{Kind: kind, ID: id, Want: w, Got: g})
	}
	return diffs
}
