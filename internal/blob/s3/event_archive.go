package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// BlobStore is the object storage the archive reads and writes.
type BlobStore interface {
	domain.BlobWriter
	domain.BlobReader
}

// EventArchive implements domain.EventArchive. Each committed batch becomes
// one JSONL object keyed events/{chainID}/{from}-{to}.jsonl with both block
// numbers zero-padded to 12 digits, so lexical key order is block order.
type EventArchive struct {
	blobs   BlobStore
	chainID int64
}

// NewEventArchive creates an EventArchive for one chain.
func NewEventArchive(blobs BlobStore, chainID int64) *EventArchive {
	return &EventArchive{blobs: blobs, chainID: chainID}
}

func (a *EventArchive) prefix() string {
	return fmt.Sprintf("events/%d/", a.chainID)
}

// BatchKey returns the object key of the batch covering [from, to].
func (a *EventArchive) BatchKey(from, to uint64) string {
	return fmt.Sprintf("%s%012d-%012d.jsonl", a.prefix(), from, to)
}

// Append uploads batch. Batches without events are not stored.
func (a *EventArchive) Append(ctx context.Context, batch domain.EventBatch) error {
	if len(batch.Events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, ev := range batch.Events {
		line, err := domain.MarshalEvent(ev)
		if err != nil {
			return fmt.Errorf("s3blob: archive batch %d-%d: %w", batch.From, batch.To, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	key := a.BatchKey(batch.From, batch.To)
	if err := a.blobs.Put(ctx, key, &buf, ndjson); err != nil {
		return fmt.Errorf("s3blob: archive batch %d-%d: %w", batch.From, batch.To, err)
	}
	return nil
}

// Replay streams every archived event in blocks >= fromBlock to fn in
// archive order. It stops at the first error fn returns.
func (a *EventArchive) Replay(ctx context.Context, fromBlock uint64, fn func(domain.Event) error) error {
	objects, err := a.blobs.List(ctx, a.prefix())
	if err != nil {
		return fmt.Errorf("s3blob: replay list: %w", err)
	}
	for _, obj := range objects {
		_, to, ok := parseBatchKey(obj.Path)
		if !ok {
			continue
		}
		if to < fromBlock {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.replayObject(ctx, obj.Path, fromBlock, fn); err != nil {
			return err
		}
	}
	return nil
}

func (a *EventArchive) replayObject(ctx context.Context, key string, fromBlock uint64, fn func(domain.Event) error) error {
	body, err := a.blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("s3blob: replay %s: %w", key, err)
	}
	defer body.Close()

	err = eachLine(body, func(line []byte) error {
		ev, err := domain.UnmarshalEvent(line)
		if err != nil {
			return err
		}
		if ev.Header().Block < fromBlock {
			return nil
		}
		return fn(ev)
	})
	if err != nil {
		return fmt.Errorf("s3blob: replay %s: %w", key, err)
	}
	return nil
}

// parseBatchKey extracts the block range from an archive key.
func parseBatchKey(key string) (from, to uint64, ok bool) {
	name, found := strings.CutSuffix(path.Base(key), ".jsonl")
	if !found {
		return 0, 0, false
	}
	lo, hi, found := strings.Cut(name, "-")
	if !found {
		return 0, 0, false
	}
	from, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	to, err = strconv.ParseUint(hi, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return from, to, true
}

var _ domain.EventArchive = (*EventArchive)(nil)
