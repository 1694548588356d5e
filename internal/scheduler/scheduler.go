// Package scheduler runs periodic relay jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/LeadRelay/internal/models"
)

// DefaultSweepTimeout bounds a single scheduled sweep.
const DefaultSweepTimeout = 10 * time.Minute

// Sweeper processes staged leads.
type Sweeper interface {
	SweepPending(ctx context.Context) (*models.SweepResult, error)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("Scheduler "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("Scheduler "+msg, append(keysAndValues, "error", err)...)
}

// NewScheduler creates a cron scheduler. Expressions use the standard five
// fields or descriptors such as "@every 15m". Panicking jobs are recovered
// and a job still running when it fires again is skipped.
func NewScheduler() *Scheduler {
	logger := slogLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	if _, err := s.cron.AddFunc(expr, task); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// ScheduleSweep runs sw.SweepPending on expr, each run bounded by timeout.
func (s *Scheduler) ScheduleSweep(expr string, sw Sweeper, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}
	if err := s.AddJob(expr, func() { runSweep(sw, timeout) }); err != nil {
		return err
	}
	slog.Info("Scheduler sweep scheduled", "schedule", expr, "timeout", timeout)
	return nil
}

func runSweep(sw Sweeper, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	res, err := sw.SweepPending(ctx)
	if err != nil {
		slog.Error("Scheduler sweep failed", "error", err)
		return
	}
	slog.Info("Scheduler sweep finished", "inserted", len(res.Inserted), "not_inserted", len(res.NotInserted), "failed", len(res.Failed))
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out with jobs still running")
	}
}
