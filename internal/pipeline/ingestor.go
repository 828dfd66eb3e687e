package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
	"github.com/alanyoungcy/marketindexer/internal/notify"
)

// EventSource yields ordered event batches from the chain.
type EventSource interface {
	SafeHead(ctx context.Context) (uint64, error)
	FetchRange(ctx context.Context, from, to uint64) (domain.EventBatch, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, a notify.Alert) error
}

// IngestorConfig controls the polling loop.
type IngestorConfig struct {
	StartBlock   uint64
	BatchSize    uint64
	PollInterval time.Duration
}

// Ingestor moves block ranges from an EventSource through the indexer. For
// every range it archives the raw batch, applies it, then fans the applied
// events out to the signal bus, the market cache and the notifier.
type Ingestor struct {
	source   EventSource
	indexer  *indexer.Indexer
	archive  domain.EventArchive
	bus      domain.SignalBus
	cache    domain.MarketCache
	notifier Notifier
	cfg      IngestorConfig
	logger   *slog.Logger

	trigger chan struct{}

	mu   sync.Mutex
	next uint64
	head uint64
}

// NewIngestor creates an Ingestor. archive, bus, cache and notifier are
// optional and may be nil.
func NewIngestor(
	source EventSource,
	ix *indexer.Indexer,
	archive domain.EventArchive,
	bus domain.SignalBus,
	cache domain.MarketCache,
	notifier Notifier,
	cfg IngestorConfig,
	logger *slog.Logger,
) *Ingestor {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Ingestor{
		source:   source,
		indexer:  ix,
		archive:  archive,
		bus:      bus,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "ingestor")),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks a running loop to poll immediately. It never blocks.
func (in *Ingestor) Trigger() {
	select {
	case in.trigger <- struct{}{}:
	default:
	}
}

// Lag is the number of confirmed blocks not yet fetched, as of the last poll.
func (in *Ingestor) Lag() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.head+1 <= in.next {
		return 0
	}
	return in.head + 1 - in.next
}

// Head returns the last observed safe head.
func (in *Ingestor) Head() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.head
}

// resume positions the next fetch at the committed cursor block. The cursor
// block is fetched again; the indexer drops the already-applied prefix.
func (in *Ingestor) resume() uint64 {
	next := in.cfg.StartBlock
	if c := in.indexer.Cursor(); c != nil && c.Block > next {
		next = c.Block
	}
	in.mu.Lock()
	in.next = next
	in.mu.Unlock()
	return next
}

// reload re-reads the committed cursor and stored markets into the indexer,
// then positions the next fetch from it.
func (in *Ingestor) reload(ctx context.Context) (uint64, error) {
	if err := in.indexer.Init(ctx); err != nil {
		return 0, fmt.Errorf("pipeline: reload: %w", err)
	}
	return in.resume(), nil
}

// Step processes at most one batch. It reports whether the source has more
// confirmed blocks beyond the processed range.
func (in *Ingestor) Step(ctx context.Context) (more bool, err error) {
	head, err := in.source.SafeHead(ctx)
	if err != nil {
		return false, fmt.Errorf("pipeline: safe head: %w", err)
	}

	in.mu.Lock()
	in.head = head
	from := in.next
	in.mu.Unlock()

	if from > head {
		return false, nil
	}
	to := min(from+in.cfg.BatchSize-1, head)

	batch, err := in.source.FetchRange(ctx, from, to)
	if err != nil {
		return false, fmt.Errorf("pipeline: fetch %d-%d: %w", from, to, err)
	}

	if in.archive != nil {
		if err := in.archive.Append(ctx, batch); err != nil {
			return false, fmt.Errorf("pipeline: archive %d-%d: %w", from, to, err)
		}
	}

	res, err := in.indexer.ApplyBatch(ctx, batch.Events)
	if res.Changes != nil {
		in.fanOut(ctx, res)
	}
	if err != nil {
		return false, fmt.Errorf("pipeline: apply %d-%d: %w", from, to, err)
	}

	in.mu.Lock()
	in.next = to + 1
	in.mu.Unlock()

	in.logger.Debug("range indexed",
		slog.Uint64("from", from),
		slog.Uint64("to", to),
		slog.Int("events", len(batch.Events)),
		slog.Int("applied", len(res.Applied)),
		slog.Int("skipped", len(res.Skipped)),
	)
	return to < head, nil
}

// CatchUp runs Step until the source is exhausted.
func (in *Ingestor) CatchUp(ctx context.Context) error {
	for {
		more, err := in.Step(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Run polls the source until ctx is cancelled. Transient failures are logged
// and retried on the next tick from the committed cursor. A strict-mode
// IndexError stops the loop and is returned.
//
// The cursor and the market registry are reloaded from the store on entry and
// after every failure, since another replica may have committed while this
// one stood by.
func (in *Ingestor) Run(ctx context.Context) error {
	in.logger.Info("ingestor starting",
		slog.Uint64("batch_size", in.cfg.BatchSize),
		slog.Duration("poll_interval", in.cfg.PollInterval),
	)

	ticker := time.NewTicker(in.cfg.PollInterval)
	defer ticker.Stop()

	synced := false
	for {
		if !synced {
			from, err := in.reload(ctx)
			switch {
			case err == nil:
				synced = true
				in.logger.Info("resuming from store cursor", slog.Uint64("from_block", from))
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				in.logger.Error("reload cursor failed", slog.String("error", err.Error()))
			}
		}

		if synced {
			if err := in.CatchUp(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var ie *domain.IndexError
				if errors.As(err, &ie) {
					in.alert(ctx, err)
					return err
				}
				in.logger.Error("ingest failed", slog.String("error", err.Error()))
				synced = false
			}
		}

		select {
		case <-ctx.Done():
			in.logger.Info("ingestor stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-in.trigger:
			in.logger.Info("manual re-sync triggered")
		}
	}
}

func (in *Ingestor) fanOut(ctx context.Context, res indexer.BatchResult) {
	if in.cache != nil && len(res.Changes.Markets) > 0 {
		if err := in.cache.Invalidate(ctx, res.Changes.MarketIDs()...); err != nil {
			in.logger.Warn("cache invalidate failed", slog.String("error", err.Error()))
		}
	}

	for _, ev := range res.Applied {
		in.publish(ctx, ev)

		switch e := ev.(type) {
		case domain.MarketCreated:
			in.send(ctx, notify.MarketCreated(e))
		case domain.MarketResolved:
			m, ok := res.Changes.Markets[indexer.NormalizeAddress(e.Market)]
			if !ok {
				continue
			}
			in.send(ctx, notify.MarketResolved(e, m))
		}
	}
}

func (in *Ingestor) publish(ctx context.Context, ev domain.Event) {
	if in.bus == nil {
		return
	}
	payload, err := domain.MarshalEvent(ev)
	if err != nil {
		in.logger.Warn("encode event failed", slog.String("error", err.Error()))
		return
	}
	if err := in.bus.Publish(ctx, channelFor(ev.Kind()), payload); err != nil {
		in.logger.Warn("publish failed", slog.String("error", err.Error()))
	}
	if err := in.bus.StreamAppend(ctx, domain.StreamActivity, payload); err != nil {
		in.logger.Warn("stream append failed", slog.String("error", err.Error()))
	}
}

func (in *Ingestor) alert(ctx context.Context, err error) {
	in.logger.Error("indexer halted", slog.String("error", err.Error()))
	in.send(ctx, notify.IndexerError(err))
}

func (in *Ingestor) send(ctx context.Context, a notify.Alert) {
	if in.notifier == nil {
		return
	}
	if err := in.notifier.Notify(ctx, a); err != nil {
		in.logger.Warn("notify failed", slog.String("event", a.Event), slog.String("error", err.Error()))
	}
}

func channelFor(kind domain.EventKind) string {
	switch kind {
	case domain.KindMarketCreated:
		return domain.ChannelMarkets
	case domain.KindMarketResolved:
		return domain.ChannelResolutions
	case domain.KindClaimed:
		return domain.ChannelClaims
	default:
		return domain.ChannelBets
	}
}
