// Package scheduler drives daemon mode: backup runs triggered by a cron
// expression.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/mlvd/dirsave/internal/logging"
)

// Scheduler fires the run function on a standard 5-field cron schedule.
// A tick that arrives while the previous run is still in progress is skipped.
type Scheduler struct {
	logger  *logging.Logger
	spec    string
	run     func(ctx context.Context)
	running atomic.Bool
}

// New creates a scheduler for the given cron spec.
func New(logger *logging.Logger, spec string, run func(ctx context.Context)) *Scheduler {
	return &Scheduler{
		logger: logger,
		spec:   spec,
		run:    run,
	}
}

// Validate checks the cron expression without starting anything.
func (s *Scheduler) Validate() error {
	if _, err := cron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid SCHEDULE %q: %w", s.spec, err)
	}
	return nil
}

// Start blocks, running the scheduled function until ctx is canceled. The
// in-flight run, if any, finishes before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid SCHEDULE %q: %w", s.spec, err)
	}

	s.logger.Info("Daemon mode: schedule %q", s.spec)
	c.Start()

	<-ctx.Done()
	s.logger.Info("Shutting down scheduler")

	// cron.Stop returns a context that completes when running jobs finish.
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warning("Previous backup run still in progress, skipping this tick")
		return
	}
	defer s.running.Store(false)

	s.run(ctx)
}
