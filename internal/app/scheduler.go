package app

import (
	"context"
	"log"
	"sync"
	"time"
)

// Task is a periodic background job. Run returns how many records it touched.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func() int
}

// Scheduler owns the background sweeps (lock reclaim, stale work, document GC).
// Each task runs on its own ticker; a panicking run is logged and the task
// keeps its schedule.
type Scheduler struct {
	logger *log.Logger
	tasks  []Task
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewScheduler creates a scheduler for tasks. Tasks with a non-positive
// interval or nil Run are ignored.
func NewScheduler(logger *log.Logger, tasks ...Task) *Scheduler {
	s := &Scheduler{
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, t := range tasks {
		if t.Interval > 0 && t.Run != nil {
			s.tasks = append(s.tasks, t)
		}
	}
	return s
}

// Start runs every task until ctx is cancelled or Stop is called. It blocks.
// Start after Stop returns at once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	defer close(s.doneCh)
	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.loop(ctx, t)
		}(t)
	}
	s.logger.Printf("Scheduler: started %d task(s)", len(s.tasks))
	wg.Wait()
	s.logger.Println("Scheduler: stopped")
}

// Stop signals all tasks to stop and waits for Start to return, if it ran.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	s.mu.Unlock()
	s.once.Do(func() { close(s.stopCh) })
	if started {
		<-s.doneCh
	}
}

// RunOnce runs the named task immediately (for testing or manual trigger).
func (s *Scheduler) RunOnce(name string) (int, bool) {
	for _, t := range s.tasks {
		if t.Name == name {
			return s.run(t), true
		}
	}
	return 0, false
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.run(t)
		}
	}
}

func (s *Scheduler) run(t Task) (n int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Scheduler: task %s panicked: %v", t.Name, r)
			n = 0
		}
	}()
	return t.Run()
}
