// Package jobs runs the periodic background work: prescription expiry, plan
// reminders, reorder sweeps and email delivery.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one named unit of periodic work. Run returns how many items it handled.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs each task on its own ticker until the context is cancelled.
type Scheduler struct {
	tasks []Task
	group *errgroup.Group
}

func NewScheduler(tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks}
}

// Add registers a task. Tasks with a non-positive interval are skipped at Start.
func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Start launches every task and returns immediately. Each task runs once right
// away, then on every tick.
func (s *Scheduler) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	for _, t := range s.tasks {
		if t.Interval <= 0 || t.Run == nil {
			slog.Warn("job disabled", "job", t.Name)
			continue
		}
		g.Go(func() error {
			s.loop(gctx, t)
			return nil
		})
	}
}

// Wait blocks until every started task has returned.
func (s *Scheduler) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	slog.Info("job started", "job", t.Name, "interval", t.Interval)
	RunOnce(ctx, t)
	for {
		select {
		case <-ctx.Done():
			slog.Info("job shutting down", "job", t.Name)
			return
		case <-ticker.C:
			RunOnce(ctx, t)
		}
	}
}

// RunOnce runs a task a single time, recording its outcome. A panic inside the
// task is logged and swallowed so the loop keeps going.
func RunOnce(ctx context.Context, t Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job", t.Name, "panic", r)
			jobRuns.WithLabelValues(t.Name, "panic").Inc()
		}
	}()

	n, err := t.Run(ctx)
	jobDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("job failed", "job", t.Name, "error", err)
		jobRuns.WithLabelValues(t.Name, "error").Inc()
		return
	}
	jobRuns.WithLabelValues(t.Name, "ok").Inc()
	jobItems.WithLabelValues(t.Name).Add(float64(n))
	if n > 0 {
		slog.Info("job processed items", "job", t.Name, "count", n)
	}
}
