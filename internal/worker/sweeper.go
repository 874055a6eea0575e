// Package worker runs background maintenance jobs.
package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

type sweeper interface {
	Sweep(idleTTL time.Duration) int
}

// Sweeper periodically evicts idle match coordinators from memory.
type Sweeper struct {
	logger *slog.Logger

	target   sweeper
	interval time.Duration
	idleTTL  time.Duration

	scheduler gocron.Scheduler
}

func NewSweeper(logger *slog.Logger, target sweeper, interval, idleTTL time.Duration) *Sweeper {
	return &Sweeper{
		logger:   logger.With("component", "sweeper"),
		target:   target,
		interval: interval,
		idleTTL:  idleTTL,
	}
}

func (that *Sweeper) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(that.interval),
		gocron.NewTask(that.RunOnce),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}

	that.scheduler = scheduler
	scheduler.Start()

	that.logger.Info("sweeper started", "interval", that.interval, "idleTTL", that.idleTTL)

	return nil
}

// RunOnce performs a single sweep.
func (that *Sweeper) RunOnce() {
	if evicted := that.target.Sweep(that.idleTTL); evicted > 0 {
		that.logger.Debug("evicted idle matches", "count", evicted)
	}
}

func (that *Sweeper) Stop() error {
	if that.scheduler == nil {
		return nil
	}

	if err := that.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	return nil
}
