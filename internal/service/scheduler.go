package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/set-night/acueducto/internal/repository"
)

// Leaser grants cluster wide exclusive leases. Acquire returns nil when the
// lease is held elsewhere.
type Leaser interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*repository.Lease, error)
}

// Job is one scheduled unit of work.
type Job struct {
	Name     string
	Schedule string
	LeaseTTL time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job only runs on the replica that
// holds its lease.
type Scheduler struct {
	cron   *cron.Cron
	leases Leaser
	ctx    context.Context
}

func NewScheduler(ctx context.Context, leases Leaser, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		leases: leases,
		ctx:    ctx,
	}
}

func (s *Scheduler) Add(job Job) error {
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.RunNow(s.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	slog.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// RunNow runs job once under its lease. It reports whether the job ran.
func (s *Scheduler) RunNow(ctx context.Context, job Job) bool {
	if s.leases != nil {
		lease, err := s.leases.Acquire(ctx, job.Name, job.LeaseTTL)
		if err != nil {
			slog.Error("failed to acquire job lease", "job", job.Name, "error", err)
			return false
		}
		if lease == nil {
			slog.Info("job lease held by another replica", "job", job.Name)
			return false
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("failed to release job lease", "job", job.Name, "error", err)
			}
		}()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		slog.Error("job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return true
	}
	slog.Info("job finished", "job", job.Name, "duration", time.Since(start))
	return true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
