package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avtotestprime/avtotest-service/internal/services"
)

// sweepTimeout bounds a single cleanup run
const sweepTimeout = time.Minute

// StaleSessionCleaner periodically deletes tests that were started but never
// submitted. Their progress has long expired, so they can never complete.
type StaleSessionCleaner struct {
	tests  services.TestService
	maxAge time.Duration
	logger *slog.Logger
	cron   *cron.Cron
}

func NewStaleSessionCleaner(tests services.TestService, maxAge time.Duration, logger *slog.Logger) *StaleSessionCleaner {
	return &StaleSessionCleaner{
		tests:  tests,
		maxAge: maxAge,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules the sweep with a cron spec such as "@hourly"
func (c *StaleSessionCleaner) Start(schedule string) error {
	if _, err := c.cron.AddFunc(schedule, c.run); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	c.cron.Start()
	c.logger.Info("Stale session cleanup scheduled", "schedule", schedule, "max_age", c.maxAge)
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire
func (c *StaleSessionCleaner) Stop(ctx context.Context) {
	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
		c.logger.Warn("Stale session cleanup did not stop in time")
	}
}

func (c *StaleSessionCleaner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := c.Sweep(ctx); err != nil {
		c.logger.Error("Stale session cleanup failed", "error", err)
	}
}

// Sweep runs one cleanup immediately
func (c *StaleSessionCleaner) Sweep(ctx context.Context) (int64, error) {
	deleted, err := c.tests.CleanupStale(ctx, c.maxAge)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		c.logger.Info("Deleted stale test sessions", "count", deleted)
	}
	return deleted, nil
}
