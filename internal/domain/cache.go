package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market lookups for the API.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, ids ...string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	// Acquire returns a lease on key. It returns ErrLockHeld when another
	// holder owns the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	// Holder returns the current holder's token, or "" when key is free.
	Holder(ctx context.Context, key string) (string, error)
}

// Lease is a held lock.
type Lease interface {
	// Refresh extends the lease by its TTL. It returns ErrLockHeld if the
	// lease was lost.
	Refresh(ctx context.Context) error
	Release()
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Channels and streams used for indexed activity.
const (
	ChannelMarkets     = "marketindexer:markets"
	ChannelBets        = "marketindexer:bets"
	ChannelResolutions = "marketindexer:resolutions"
	ChannelClaims      = "marketindexer:claims"
	StreamActivity     = "marketindexer:activity"
)
