// Package schedule runs jobs on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Job is a named function run on a cron expression.
type Job struct {
	Name string
	Expr string
	Run  func(ctx context.Context) error
}

// Scheduler runs registered jobs until its context is cancelled. Each job
// runs at most once at a time; a tick that arrives while the previous run is
// still going is skipped.
type Scheduler struct {
	mu   sync.Mutex
	jobs []Job
	now  func() time.Time
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Add validates expr and registers the job.
func (s *Scheduler) Add(job Job) error {
	if !gronx.New().IsValid(job.Expr) {
		return fmt.Errorf("job %s: invalid cron expression %q", job.Name, job.Expr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Next returns the next time expr fires strictly after ref.
func Next(expr string, ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, ref, false)
}

// Run blocks, firing jobs on schedule, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()
	if len(jobs) == 0 {
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		next, err := Next(job.Expr, s.now())
		if err != nil {
			slog.Error("schedule: next tick", "job", job.Name, "error", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		start := s.now()
		if err := job.Run(ctx); err != nil {
			slog.Error("scheduled job failed", "job", job.Name, "error", err)
			continue
		}
		slog.Info("scheduled job done", "job", job.Name, "duration", time.Since(start))
	}
}
