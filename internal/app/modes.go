package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketindexer/internal/chain"
	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/indexer"
	"github.com/alanyoungcy/marketindexer/internal/pipeline"
	"github.com/alanyoungcy/marketindexer/internal/server"
	"github.com/alanyoungcy/marketindexer/internal/server/handler"
	"github.com/alanyoungcy/marketindexer/internal/server/ws"
	"github.com/alanyoungcy/marketindexer/internal/service"
	"github.com/alanyoungcy/marketindexer/internal/store/memory"
)

// maxLoggedDiffs caps the per-entity diff lines replay verification logs.
const maxLoggedDiffs = 50

// IndexMode follows the chain and writes entities. It serves no HTTP.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	orch, err := a.buildPipeline(ctx, deps)
	if err != nil {
		return fmt.Errorf("index mode: %w", err)
	}
	a.audit(ctx, deps, "indexer_started", map[string]any{"mode": "index"})
	return orch.Run(ctx)
}

// ServerMode serves the read API and live feed from the store another
// process is writing.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the pipeline and the HTTP server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	orch, err := a.buildPipeline(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.audit(ctx, deps, "indexer_started", map[string]any{"mode": "full"})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, orch)
	}
	return g.Wait()
}

// ReplayMode rebuilds entities from the event archive. With
// archive.replay_verify it rebuilds into memory and compares the result to
// the live store instead of writing.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archive == nil {
		return errors.New("replay mode: event archive unavailable (enable s3)")
	}
	replayer := pipeline.NewReplayer(deps.Archive, int(a.cfg.Chain.BatchSize), a.logger)
	registry := indexer.NewRegistry(a.cfg.Chain.FactoryAddress)

	if a.cfg.Archive.ReplayVerify {
		a.logger.InfoContext(ctx, "starting replay verification")
		mem := memory.New()
		ix := indexer.New(mem, registry, indexer.Policy{Strict: true}, a.logger)
		applied, skipped, err := replayer.Rebuild(ctx, ix)
		if err != nil {
			return fmt.Errorf("replay mode: %w", err)
		}
		diffs, err := pipeline.Verify(ctx, deps.Store, mem)
		if err != nil {
			return fmt.Errorf("replay mode: %w", err)
		}
		for i, d := range diffs {
			if i == maxLoggedDiffs {
				a.logger.WarnContext(ctx, "further diffs omitted", slog.Int("total", len(diffs)))
				break
			}
			a.logger.WarnContext(ctx, "entity differs from archive",
				slog.String("kind", d.Kind),
				slog.String("id", d.ID),
				slog.String("live", string(d.Want)),
				slog.String("replayed", string(d.Got)),
			)
		}
		a.audit(ctx, deps, "replay_verified", map[string]any{
			"applied": applied,
			"skipped": skipped,
			"diffs":   len(diffs),
		})
		if len(diffs) > 0 {
			return fmt.Errorf("replay mode: %d entities differ from the archive", len(diffs))
		}
		a.logger.InfoContext(ctx, "replay verification passed", slog.Int("applied", applied))
		return nil
	}

	a.logger.InfoContext(ctx, "starting replay into live store")
	if deps.Locks != nil {
		lease, err := deps.Locks.Acquire(ctx, a.cfg.Indexer.LockKey, a.cfg.Indexer.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("replay mode: writer lock: %w", err)
		}
		defer lease.Release()
		defer a.keepLease(ctx, lease, a.cfg.Indexer.LockTTL.Duration)()
	}

	ix := indexer.New(deps.Store, registry, indexer.Policy{Strict: a.cfg.Indexer.Strict}, a.logger)
	if err := ix.Init(ctx); err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	applied, skipped, err := replayer.Rebuild(ctx, ix)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	a.audit(ctx, deps, "replay_completed", map[string]any{"applied": applied, "skipped": skipped})
	return nil
}

// keepLease refreshes lease every ttl/3 until the returned stop is called.
func (a *App) keepLease(ctx context.Context, lease domain.Lease, ttl time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lease.Refresh(ctx); err != nil {
					a.logger.WarnContext(ctx, "writer lock refresh failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return func() { close(done) }
}

// buildPipeline dials the chain and assembles the ingestor, the snapshot job
// and the orchestrator around the live store.
func (a *App) buildPipeline(ctx context.Context, deps *Dependencies) (*pipeline.Orchestrator, error) {
	client, err := chain.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	decoder, err := chain.NewDecoder()
	if err != nil {
		return nil, err
	}

	registry := indexer.NewRegistry(a.cfg.Chain.FactoryAddress)
	ix := indexer.New(deps.Store, registry, indexer.Policy{Strict: a.cfg.Indexer.Strict}, a.logger)
	if err := ix.Init(ctx); err != nil {
		return nil, err
	}

	source := chain.NewSource(client, decoder, registry, chain.SourceConfig{
		Factory:       a.cfg.Chain.FactoryAddress,
		Confirmations: a.cfg.Chain.Confirmations,
		MaxAddresses:  a.cfg.Chain.MaxAddresses,
		RPCTimeout:    a.cfg.Chain.RPCTimeout.Duration,
		MaxRetries:    a.cfg.Chain.MaxRetries,
		HeaderCache:   a.cfg.Indexer.HeaderCache,
	}, a.logger)

	var archive domain.EventArchive
	if a.cfg.Archive.Events {
		archive = deps.Archive
	}
	ingestor := pipeline.NewIngestor(source, ix, archive, deps.Bus, deps.MarketCache, deps.Notifier,
		pipeline.IngestorConfig{
			StartBlock:   a.cfg.Chain.StartBlock,
			BatchSize:    a.cfg.Chain.BatchSize,
			PollInterval: a.cfg.Chain.PollInterval.Duration,
		}, a.logger)

	var snapshots *pipeline.SnapshotJob
	if deps.Snapshotter != nil {
		snapshots = pipeline.NewSnapshotJob(deps.Snapshotter, a.logger)
	}

	return pipeline.NewOrchestrator(ingestor, snapshots, deps.Locks, pipeline.OrchestratorConfig{
		LockKey:      a.cfg.Indexer.LockKey,
		LockTTL:      a.cfg.Indexer.LockTTL.Duration,
		SnapshotCron: a.cfg.Archive.SnapshotCron,
	}, a.logger), nil
}

// lockView reports the writer lock holder when this process runs no
// pipeline of its own.
type lockView struct {
	locks domain.LockManager
	key   string
}

func (l lockView) LockHolder(ctx context.Context) (string, error) {
	return l.locks.Holder(ctx, l.key)
}

// startHTTPServer adds the API server, its graceful shutdown and the
// WebSocket hub to g. orch is nil when the pipeline runs elsewhere.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, orch *pipeline.Orchestrator) {
	var (
		trigger handler.Triggerer
		status  handler.PipelineStatus
		holder  handler.LockHolder
	)
	switch {
	case orch != nil:
		trigger, status, holder = orch, orch, orch
	case deps.Locks != nil:
		holder = lockView{locks: deps.Locks, key: a.cfg.Indexer.LockKey}
	}

	marketSvc := service.NewMarketService(deps.Store, deps.MarketCache, a.logger)
	userSvc := service.NewUserService(deps.Store, a.logger)
	statsSvc := service.NewStatsService(deps.Store)

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Pingers, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, deps.Store, status, holder, a.logger),
		Markets:  handler.NewMarketHandler(marketSvc, a.logger),
		Users:    handler.NewUserHandler(userSvc, a.logger),
		Stats:    handler.NewStatsHandler(statsSvc, a.logger),
		Pipeline: handler.NewPipelineHandler(trigger, a.logger),
		Audit:    handler.NewAuditHandler(deps.Audit, a.logger),
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws hub: %w", err)
		})
	}

	rateLimit := 0
	if deps.RateLimiter != nil {
		rateLimit = a.cfg.Redis.RateLimitPerMin
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: rateLimit,
		TrustProxy:      a.cfg.Server.TrustProxy,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// audit records a lifecycle event. Failures are logged, not returned.
func (a *App) audit(ctx context.Context, deps *Dependencies, event string, detail map[string]any) {
	if deps.Audit == nil {
		return
	}
	if err := deps.Audit.Log(ctx, event, detail); err != nil {
		a.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
