// Package indexer folds decoded contract events into the derived market,
// user, position and stats entities.
//
// Events must arrive in (block, logIndex) order. Each event is applied
// against a staged view of the store and either contributes all of its
// writes or none of them. A batch of events is committed to the store in a
// single Commit together with the cursor of the last consumed event, so a
// restarted indexer resumes exactly where the last commit left off.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// Policy selects how the indexer reacts to events that reference state the
// stream has not produced, such as a bet on an unknown market.
type Policy struct {
	// Strict aborts the batch on the first such event. Otherwise the event is
	// logged, recorded as skipped and the cursor moves past it.
	Strict bool
}

// Skipped is an event the indexer consumed without applying.
type Skipped struct {
	Event domain.Event
	Err   error
}

// BatchResult describes what ApplyBatch did with each event.
type BatchResult struct {
	Changes *domain.Changeset
	Applied []domain.Event
	Skipped []Skipped
}

// Status is a point-in-time view of the indexer counters.
type Status struct {
	Cursor        *domain.Cursor    `json:"cursor"`
	Applied       uint64            `json:"applied"`
	Skipped       map[string]uint64 `json:"skipped"`
	WatchedMarket int               `json:"watchedMarkets"`
}

// Indexer applies events to an EntityStore. It is safe for concurrent use;
// batches are serialized.
type Indexer struct {
	store    domain.EntityStore
	registry *Registry
	policy   Policy
	logger   *slog.Logger

	mu      sync.Mutex
	cursor  *domain.Cursor
	applied uint64
	skipped map[string]uint64
}

// New creates an Indexer. Call Init before the first batch when the store
// may already hold state.
func New(store domain.EntityStore, registry *Registry, policy Policy, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:    store,
		registry: registry,
		policy:   policy,
		logger:   logger.With(slog.String("component", "indexer")),
		skipped:  make(map[string]uint64),
	}
}

// Init loads the committed cursor and registers every stored market with the
// registry.
func (ix *Indexer) Init(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur, err := ix.store.Cursor(ctx)
	switch {
	case err == nil:
		ix.cursor = &cur
	case errors.Is(err, domain.ErrNotFound):
		ix.cursor = nil
	default:
		return fmt.Errorf("indexer: load cursor: %w", err)
	}

	addrs, err := ix.store.MarketAddresses(ctx)
	if err != nil {
		return fmt.Errorf("indexer: load market addresses: %w", err)
	}
	ix.registry.Add(addrs...)

	ix.logger.Info("indexer initialised",
		slog.Any("cursor", ix.cursor),
		slog.Int("markets", len(addrs)),
	)
	return nil
}

// Cursor returns the position of the last consumed event, or nil before the
// first commit.
func (ix *Indexer) Cursor() *domain.Cursor {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.cursor == nil {
		return nil
	}
	c := *ix.cursor
	return &c
}

// Registry returns the registry of watched contracts.
func (ix *Indexer) Registry() *Registry {
	return ix.registry
}

// Status returns the current counters.
func (ix *Indexer) Status() Status {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	st := Status{
		Applied:       ix.applied,
		Skipped:       make(map[string]uint64, len(ix.skipped)),
		WatchedMarket: ix.registry.Len(),
	}
	if ix.cursor != nil {
		c := *ix.cursor
		st.Cursor = &c
	}
	for k, v := range ix.skipped {
		st.Skipped[k] = v
	}
	return st
}

// Apply applies a single event. It returns the reason when the event was not
// applied, whether or not the policy let the cursor move past it.
func (ix *Indexer) Apply(ctx context.Context, ev domain.Event) error {
	res, err := ix.ApplyBatch(ctx, []domain.Event{ev})
	if err != nil {
		return err
	}
	if len(res.Skipped) > 0 {
		return res.Skipped[0].Err
	}
	return nil
}

// ApplyBatch applies events in order and commits the result once.
//
// Events at or before the cursor are skipped with ErrOutOfOrder and never
// change state. Under the strict policy the first IndexError stops the
// batch; the prefix before it is still committed and the error is returned.
// Store failures always stop the batch.
func (ix *Indexer) ApplyBatch(ctx context.Context, events []domain.Event) (BatchResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	batch := newStage(ix.store)
	res := BatchResult{}
	var (
		created []string
		cursor  = ix.cursor
		failure error
	)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			failure = err
			break
		}

		c := ev.Header().Cursor()
		if cursor != nil && !cursor.Before(c) {
			ix.logger.Debug("event at or before cursor",
				slog.String("event", string(ev.Kind())),
				slog.String("at", c.String()),
				slog.String("cursor", cursor.String()),
			)
			res.Skipped = append(res.Skipped, Skipped{Event: ev, Err: domain.NewIndexError(domain.ErrOutOfOrder, ev, cursor.String())})
			continue
		}

		child := newStage(batch)
		err := ix.dispatch(ctx, child, ev)
		if err == nil {
			child.setCursor(c)
			batch.merge(child)
			res.Applied = append(res.Applied, ev)
			if mc, ok := ev.(domain.MarketCreated); ok {
				created = append(created, NormalizeAddress(mc.Market))
			}
			cursor = &c
			continue
		}

		var ie *domain.IndexError
		if !errors.As(err, &ie) || ix.policy.Strict {
			failure = err
			break
		}

		ix.logger.Warn("event skipped",
			slog.String("event", string(ev.Kind())),
			slog.String("at", c.String()),
			slog.String("tx", ev.Header().TxHash),
			slog.String("error", err.Error()),
		)
		res.Skipped = append(res.Skipped, Skipped{Event: ev, Err: err})
		batch.setCursor(c)
		cursor = &c
	}

	if batch.cursorSet {
		if err := ix.store.Commit(ctx, batch.cs); err != nil {
			return BatchResult{}, fmt.Errorf("indexer: commit through %s: %w", batch.cs.Cursor, err)
		}
		committed := batch.cs.Cursor
		ix.cursor = &committed
		ix.registry.Add(created...)
		ix.applied += uint64(len(res.Applied))
	}
	for _, sk := range res.Skipped {
		var ie *domain.IndexError
		if errors.As(sk.Err, &ie) {
			ix.skipped[ie.Kind.Error()]++
		}
	}

	res.Changes = batch.cs
	return res, failure
}

func (ix *Indexer) dispatch(ctx context.Context, s *stage, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.MarketCreated:
		return ix.handleMarketCreated(ctx, s, e)
	case domain.BetPlaced:
		return ix.handleBetPlaced(ctx, s, e)
	case domain.MarketResolved:
		return ix.handleMarketResolved(ctx, s, e)
	case domain.Claimed:
		return ix.handleClaimed(ctx, s, e)
	default:
		return domain.NewIndexError(domain.ErrUnknownEvent, ev, fmt.Sprintf("%T", ev))
	}
}
