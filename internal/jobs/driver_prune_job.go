package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DriverPruner drops drivers that stopped reporting their location.
type DriverPruner interface {
	PruneStale(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
}

type DriverPruneJob struct {
	pruner DriverPruner
	spec   string
	maxAge time.Duration
	now    func() time.Time
	cron   *cron.Cron
	logger *slog.Logger
}

func NewDriverPruneJob(pruner DriverPruner, spec string, maxAge time.Duration, logger *slog.Logger) *DriverPruneJob {
	return &DriverPruneJob{
		pruner: pruner,
		spec:   spec,
		maxAge: maxAge,
		now:    func() time.Time { return time.Now().UTC() },
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.With("component", "driver_prune_job"),
	}
}

func (j *DriverPruneJob) Start() error {
	if _, err := j.cron.AddFunc(j.spec, func() { j.run(context.Background()) }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("driver prune job started", "spec", j.spec, "max_age", j.maxAge)
	return nil
}

func (j *DriverPruneJob) run(ctx context.Context) {
	n, err := j.pruner.PruneStale(ctx, j.now(), j.maxAge)
	if err != nil {
		j.logger.ErrorContext(ctx, "driver prune failed", "err", err)
		return
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "pruned stale drivers", "count", n)
	}
}

func (j *DriverPruneJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("driver prune job stopped")
}
