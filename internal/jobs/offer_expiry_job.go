package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// OfferSweeper expires offers whose persisted deadline has passed.
type OfferSweeper interface {
	ExpireDue(ctx context.Context) (int, error)
}

// OfferExpiryJob backs up the in-process offer timers. After a restart or a
// missed timer it is the only thing that moves stale offers along.
type OfferExpiryJob struct {
	sweeper OfferSweeper
	spec    string
	cron    *cron.Cron
	logger  *slog.Logger
}

func NewOfferExpiryJob(sweeper OfferSweeper, spec string, logger *slog.Logger) *OfferExpiryJob {
	return &OfferExpiryJob{
		sweeper: sweeper,
		spec:    spec,
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.With("component", "offer_expiry_job"),
	}
}

func (j *OfferExpiryJob) Start() error {
	if _, err := j.cron.AddFunc(j.spec, func() { j.run(context.Background()) }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("offer expiry job started", "spec", j.spec)
	return nil
}

func (j *OfferExpiryJob) run(ctx context.Context) int {
	n, err := j.sweeper.ExpireDue(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "offer expiry sweep failed", "err", err, "expired", n)
		return n
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "expired overdue offers", "count", n)
	}
	return n
}

// Stop waits for a running sweep to finish.
func (j *OfferExpiryJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("offer expiry job stopped")
}
