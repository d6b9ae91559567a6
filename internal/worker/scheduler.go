package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner executes one named job and reports how many records it changed.
type Runner interface {
	Run(ctx context.Context, job string) (int, error)
}

// Lock is held for the duration of a single job run.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Schedule struct {
	Job      string
	Interval time.Duration
	Lock     Lock
}

// Scheduler runs every schedule on its own ticker until the context ends.
type Scheduler struct {
	runner    Runner
	schedules []Schedule
	log       *zap.Logger
}

func NewScheduler(runner Runner, schedules []Schedule, log *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	for _, s := range schedules {
		if s.Job == "" || s.Interval <= 0 {
			return nil, fmt.Errorf("invalid schedule for job %q", s.Job)
		}
	}
	return &Scheduler{runner: runner, schedules: schedules, log: log}, nil
}

// Run blocks until ctx is cancelled. Each job runs once at start.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sched := range s.schedules {
		g.Go(func() error {
			s.loop(ctx, sched)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sched Schedule) {
	ticker := time.NewTicker(sched.Interval)
	defer ticker.Stop()

	s.tick(ctx, sched)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, sched)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, sched Schedule) {
	log := s.log.With(zap.String("job", sched.Job))
	if sched.Lock != nil {
		ok, err := sched.Lock.Acquire(ctx)
		if err != nil {
			log.Warn("job lock unavailable", zap.Error(err))
			return
		}
		if !ok {
			log.Debug("job running elsewhere, skipping")
			return
		}
		defer func() {
			if err := sched.Lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release job lock", zap.Error(err))
			}
		}()
	}

	if _, err := s.runner.Run(ctx, sched.Job); err != nil && ctx.Err() == nil {
		log.Error("job failed", zap.Error(err))
	}
}
