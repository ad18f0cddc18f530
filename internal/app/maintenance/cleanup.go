package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
)

const defaultSchedule = "0 3 * * *"

// Job is one named sweep executed by the cleaner. It reports how many rows
// it removed.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Cleaner periodically executes retention sweeps. Jobs are registered before
// Start; a failing job never prevents its siblings from running.
type Cleaner struct {
	schedule string
	timeout  time.Duration
	log      *zap.Logger

	mu   sync.Mutex
	jobs []Job
	cron *cron.Cron
}

// CleanerOption customises the cleaner.
type CleanerOption func(*Cleaner)

// WithSchedule overrides the cron schedule (standard five-field syntax).
func WithSchedule(schedule string) CleanerOption {
	return func(c *Cleaner) {
		if schedule != "" {
			c.schedule = schedule
		}
	}
}

// WithJobTimeout bounds how long one full sweep may run.
func WithJobTimeout(timeout time.Duration) CleanerOption {
	return func(c *Cleaner) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewCleaner constructs an idle cleaner.
func NewCleaner(opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		schedule: defaultSchedule,
		timeout:  5 * time.Minute,
		log:      logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a sweep job. Not safe to call after Start.
func (c *Cleaner) Register(job Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
}

// Start schedules the periodic sweep. Returns an error for an unparsable
// schedule.
func (c *Cleaner) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return nil
	}

	runner := cron.New()
	if _, err := runner.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Error("scheduled sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	runner.Start()
	c.cron = runner
	c.log.Info("retention cleaner started", zap.String("schedule", c.schedule))
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return
	}
	<-runner.Stop().Done()
}

// RunOnce executes every registered job immediately, aggregating failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	jobs := make([]Job, len(c.jobs))
	copy(jobs, c.jobs)
	c.mu.Unlock()

	var errs error
	for _, job := range jobs {
		removed, err := job.Run(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name, err))
			continue
		}
		if removed > 0 {
			c.log.Info("sweep completed",
				zap.String("job", job.Name),
				zap.Int64("rows", removed))
		}
	}
	return errs
}
