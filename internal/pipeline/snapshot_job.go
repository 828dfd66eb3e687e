package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Snapshotter exports the current entity state.
type Snapshotter interface {
	Run(ctx context.Context, at time.Time) (map[string]int64, error)
}

// SnapshotJob runs a Snapshotter on a cron schedule.
type SnapshotJob struct {
	snapshotter Snapshotter
	logger      *slog.Logger
	now         func() time.Time
}

// NewSnapshotJob creates a SnapshotJob.
func NewSnapshotJob(s Snapshotter, logger *slog.Logger) *SnapshotJob {
	return &SnapshotJob{
		snapshotter: s,
		logger:      logger.With(slog.String("component", "snapshot")),
		now:         time.Now,
	}
}

// RunOnce takes one snapshot stamped with the current time.
func (j *SnapshotJob) RunOnce(ctx context.Context) error {
	at := j.now().UTC()
	counts, err := j.snapshotter.Run(ctx, at)
	if err != nil {
		return fmt.Errorf("pipeline: snapshot: %w", err)
	}
	j.logger.Info("snapshot written",
		slog.Time("at", at),
		slog.Int64("markets", counts["markets"]),
		slog.Int64("users", counts["users"]),
		slog.Int64("positions", counts["positions"]),
		slog.Int64("pruned", counts["pruned"]),
	)
	return nil
}

// RunCron blocks until ctx is cancelled, taking a snapshot at every time
// matching cronExpr. A failed run is logged and the schedule continues.
func (j *SnapshotJob) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: parse cron %q: %w", cronExpr, err)
	}

	for {
		next, err := sched.next(j.now())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}
		j.logger.Info("next snapshot scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := j.RunOnce(ctx); err != nil {
			j.logger.Error("snapshot failed", slog.String("error", err.Error()))
		}
	}
}
