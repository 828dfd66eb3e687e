package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage. List returns objects in
// lexical key order.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// EventBatch is a contiguous, ordered range of decoded logs.
type EventBatch struct {
	From   uint64  `json:"from"`
	To     uint64  `json:"to"`
	Events []Event `json:"-"`
}

// EventArchive stores and replays committed event batches.
type EventArchive interface {
	Append(ctx context.Context, batch EventBatch) error
	Replay(ctx context.Context, fromBlock uint64, fn func(Event) error) error
}
