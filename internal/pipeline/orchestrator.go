package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
)

// OrchestratorConfig names the writer lock and the snapshot schedule. An
// empty SnapshotCron disables snapshots.
type OrchestratorConfig struct {
	LockKey      string
	LockTTL      time.Duration
	SnapshotCron string
}

// Orchestrator runs the ingestor and the snapshot job. When a LockManager is
// configured only the replica holding the writer lock ingests; the others
// stand by and take over when the lock frees up.
type Orchestrator struct {
	ingestor  *Ingestor
	snapshots *SnapshotJob
	locks     domain.LockManager
	cfg       OrchestratorConfig
	logger    *slog.Logger

	leader atomic.Bool
}

// NewOrchestrator creates an Orchestrator. snapshots and locks may be nil.
func NewOrchestrator(
	ingestor *Ingestor,
	snapshots *SnapshotJob,
	locks domain.LockManager,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Orchestrator{
		ingestor:  ingestor,
		snapshots: snapshots,
		locks:     locks,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Ingestor returns the managed ingestor.
func (o *Orchestrator) Ingestor() *Ingestor { return o.ingestor }

// Head returns the last observed safe head.
func (o *Orchestrator) Head() uint64 { return o.ingestor.Head() }

// Lag returns the number of confirmed blocks not yet indexed.
func (o *Orchestrator) Lag() uint64 { return o.ingestor.Lag() }

// IndexerStatus returns the indexer counters.
func (o *Orchestrator) IndexerStatus() indexer.Status { return o.ingestor.indexer.Status() }

// Leader reports whether this process currently runs the ingestor.
func (o *Orchestrator) Leader() bool { return o.leader.Load() }

// Trigger requests an immediate poll.
func (o *Orchestrator) Trigger() { o.ingestor.Trigger() }

// Run starts all sub-systems and blocks until ctx is cancelled or one of them
// fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.String("lock_key", o.cfg.LockKey),
		slog.Duration("lock_ttl", o.cfg.LockTTL),
		slog.String("snapshot_cron", o.cfg.SnapshotCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.runIngest(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("ingestor: %w", err)
	})

	if o.snapshots != nil && o.cfg.SnapshotCron != "" {
		g.Go(func() error {
			err := o.snapshots.RunCron(ctx, o.cfg.SnapshotCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("snapshots: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

func (o *Orchestrator) runIngest(ctx context.Context) error {
	if o.locks == nil {
		o.leader.Store(true)
		defer o.leader.Store(false)
		return o.ingestor.Run(ctx)
	}

	for {
		lease, err := o.locks.Acquire(ctx, o.cfg.LockKey, o.cfg.LockTTL)
		switch {
		case err == nil:
			if err := o.lead(ctx, lease); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrLockHeld):
			o.logger.Debug("writer lock held elsewhere, standing by")
		default:
			o.logger.Warn("acquire writer lock failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.LockTTL / 2):
		}
	}
}

// lead runs the ingestor while refreshing lease. It returns nil when the
// lease is lost so the caller can go back to standby.
func (o *Orchestrator) lead(ctx context.Context, lease domain.Lease) error {
	defer lease.Release()
	o.leader.Store(true)
	defer o.leader.Store(false)
	o.logger.Info("writer lock acquired")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.ingestor.Run(runCtx) }()

	ticker := time.NewTicker(o.cfg.LockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		case <-ticker.C:
			if err := lease.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				o.logger.Warn("writer lock lost", slog.String("error", err.Error()))
				cancel()
				<-done
				return nil
			}
		}
	}
}

// LockHolder reports who owns the writer lock, or "" when nobody does or no
// lock is configured.
func (o *Orchestrator) LockHolder(ctx context.Context) (string, error) {
	if o.locks == nil {
		return "", nil
	}
	return o.locks.Holder(ctx, o.cfg.LockKey)
}
