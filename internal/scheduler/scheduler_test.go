package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/LeadRelay/internal/models"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) SweepPending(ctx context.Context) (*models.SweepResult, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("sweep context has no deadline")
	}
	if c.err != nil {
		return nil, c.err
	}
	return models.NewSweepResult(), nil
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("@every 15m", func() {}); err != nil {
		t.Errorf("Expected descriptor to parse, got %v", err)
	}
	if err := s.AddJob("not a schedule", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestRunSweep(t *testing.T) {
	sw := &countingSweeper{}
	runSweep(sw, time.Second)
	sw.err = errors.New("store down")
	runSweep(sw, time.Second)
	if got := sw.calls.Load(); got != 2 {
		t.Errorf("expected 2 sweeps, got %d", got)
	}
}

func TestScheduleSweep_Fires(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler()
	if err := s.ScheduleSweep("@every 1s", sw, 0); err != nil {
		t.Fatalf("ScheduleSweep failed: %v", err)
	}
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for sw.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sw.calls.Load() == 0 {
		t.Error("expected scheduled sweep to run")
	}
}
