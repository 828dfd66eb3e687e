package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// multipartThreshold is the snapshot size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 << 20

const snapshotRoot = "snapshots/"

// SnapshotStore is the object storage snapshots are written to and pruned
// from.
type SnapshotStore interface {
	BlobStore
	Delete(ctx context.Context, paths ...string) error
}

// Snapshotter exports full entity tables to object storage as JSONL, one
// object per kind and day, and prunes days past the retention window. It
// never mutates the source store.
type Snapshotter struct {
	blobs     SnapshotStore
	source    domain.SnapshotReader
	audit     domain.AuditStore
	retention int
}

// NewSnapshotter creates a Snapshotter keeping retentionDays days of
// snapshots; zero keeps everything. audit may be nil.
func NewSnapshotter(blobs SnapshotStore, source domain.SnapshotReader, audit domain.AuditStore, retentionDays int) *Snapshotter {
	return &Snapshotter{blobs: blobs, source: source, audit: audit, retention: max(retentionDays, 0)}
}

// SnapshotKey returns snapshots/{kind}/{YYYY-MM-DD}.jsonl for at.
func SnapshotKey(kind string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s.jsonl", snapshotRoot, kind, at.UTC().Format(time.DateOnly))
}

// snapshotDay parses the day out of a SnapshotKey.
func snapshotDay(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, snapshotRoot) {
		return time.Time{}, false
	}
	name, ok := strings.CutSuffix(path.Base(key), ".jsonl")
	if !ok {
		return time.Time{}, false
	}
	day, err := time.Parse(time.DateOnly, name)
	return day, err == nil
}

// Prune deletes snapshots older than the retention window ending on at's
// day and returns how many objects it removed.
func (s *Snapshotter) Prune(ctx context.Context, at time.Time) (int, error) {
	if s.retention == 0 {
		return 0, nil
	}
	cutoff := at.UTC().Truncate(24*time.Hour).AddDate(0, 0, -s.retention)

	objects, err := s.blobs.List(ctx, snapshotRoot)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune list: %w", err)
	}
	var stale []string
	for _, obj := range objects {
		if day, ok := snapshotDay(obj.Path); ok && day.Before(cutoff) {
			stale = append(stale, obj.Path)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.blobs.Delete(ctx, stale...); err != nil {
		return 0, fmt.Errorf("s3blob: prune: %w", err)
	}
	return len(stale), nil
}

// Run writes the markets, users and positions snapshots for day at, prunes
// expired days and returns the row count of each kind plus "pruned".
func (s *Snapshotter) Run(ctx context.Context, at time.Time) (map[string]int64, error) {
	counts := make(map[string]int64, 3)

	markets, err := dump(ctx, s.blobs, SnapshotKey("markets", at), func(emit func(any) error) error {
		return s.source.EachMarket(ctx, func(m domain.Market) error { return emit(m) })
	})
	if err != nil {
		return counts, err
	}
	counts["markets"] = markets

	users, err := dump(ctx, s.blobs, SnapshotKey("users", at), func(emit func(any) error) error {
		return s.source.EachUser(ctx, func(u domain.User) error { return emit(u) })
	})
	if err != nil {
		return counts, err
	}
	counts["users"] = users

	positions, err := dump(ctx, s.blobs, SnapshotKey("positions", at), func(emit func(any) error) error {
		return s.source.EachPosition(ctx, func(p domain.Position) error { return emit(p) })
	})
	if err != nil {
		return counts, err
	}
	counts["positions"] = positions

	pruned, err := s.Prune(ctx, at)
	if err != nil {
		return counts, err
	}
	counts["pruned"] = int64(pruned)

	if s.audit != nil {
		detail := map[string]any{"date": at.UTC().Format(time.DateOnly)}
		for k, v := range counts {
			detail[k] = v
		}
		if err := s.audit.Log(ctx, "snapshot.completed", detail); err != nil {
			return counts, fmt.Errorf("s3blob: snapshot audit log: %w", err)
		}
	}
	return counts, nil
}

func dump(ctx context.Context, w domain.BlobWriter, key string, each func(emit func(any) error) error) (int64, error) {
	var buf bytes.Buffer
	enc := jsonlEncoder(&buf)
	var n int64
	err := each(func(v any) error {
		n++
		return enc.Encode(v)
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: snapshot %s: %w", key, err)
	}

	if buf.Len() > multipartThreshold {
		err = w.PutMultipart(ctx, key, &buf, 0)
	} else {
		err = w.Put(ctx, key, &buf, ndjson)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: snapshot upload %s: %w", key, err)
	}
	return n, nil
}
