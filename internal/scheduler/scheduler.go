package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type task struct {
	name     string
	interval time.Duration
	run      func(context.Context)
}

// Scheduler owns the process's periodic background tasks (cache sweep,
// context flush) and stops them deterministically on shutdown.
type Scheduler struct {
	logger *zap.Logger
	tasks  []task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Every registers a periodic task. Must be called before Start.
func (s *Scheduler) Every(name string, interval time.Duration, run func(context.Context)) {
	s.tasks = append(s.tasks, task{name: name, interval: interval, run: run})
}

// Start launches one loop per registered task.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(t)
	}

	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Stop cancels all task loops and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(t task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			t.run(s.ctx)
		}
	}
}
