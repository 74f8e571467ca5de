// README: Scheduled background jobs: offer expiry sweep and driver pool pruning.
package jobs

import (
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	SweepSpec        string
	PruneSpec        string
	DriverStaleAfter time.Duration
}

type JobManager struct {
	offerExpiry *OfferExpiryJob
	driverPrune *DriverPruneJob
}

// NewJobManager wires the jobs. pruner may be nil when no driver pool is configured.
func NewJobManager(sweeper OfferSweeper, pruner DriverPruner, cfg Config, logger *slog.Logger) *JobManager {
	jm := &JobManager{offerExpiry: NewOfferExpiryJob(sweeper, cfg.SweepSpec, logger)}
	if pruner != nil && cfg.DriverStaleAfter > 0 {
		jm.driverPrune = NewDriverPruneJob(pruner, cfg.PruneSpec, cfg.DriverStaleAfter, logger)
	}
	return jm
}

func (jm *JobManager) StartAll() error {
	if err := jm.offerExpiry.Start(); err != nil {
		return fmt.Errorf("start offer expiry job: %w", err)
	}
	if jm.driverPrune != nil {
		if err := jm.driverPrune.Start(); err != nil {
			jm.offerExpiry.Stop()
			return fmt.Errorf("start driver prune job: %w", err)
		}
	}
	return nil
}

func (jm *JobManager) StopAll() {
	jm.offerExpiry.Stop()
	if jm.driverPrune != nil {
		jm.driverPrune.Stop()
	}
}
