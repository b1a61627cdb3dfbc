package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Task is a unit of periodic work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (t TaskFunc) Name() string { return t.TaskName }

func (t TaskFunc) Run(ctx context.Context) error {
	if t.Fn == nil {
		return nil
	}
	return t.Fn(ctx)
}

// Scheduler runs tasks on fixed intervals.
type Scheduler interface {
	RegisterPeriodic(interval time.Duration, task Task) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var (
	ErrSchedulerRunning = errors.New("scheduler already started")
	ErrInvalidInterval  = errors.New("interval must be positive")
)

type periodic struct {
	interval time.Duration
	task     Task
}

// TickerScheduler gives every task its own ticker goroutine. A task never
// overlaps with itself; a slow run delays its next tick.
type TickerScheduler struct {
	mu      sync.Mutex
	tasks   []periodic
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	timeout time.Duration
	logger  Logger
}

var _ Scheduler = (*TickerScheduler)(nil)

func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{
		logger:  defLogger{},
		timeout: time.Minute,
	}
}

func (s *TickerScheduler) WithLogger(l Logger) *TickerScheduler {
	s.logger = normalizeLogger(l)
	return s
}

// WithRunTimeout bounds a single run of any task.
func (s *TickerScheduler) WithRunTimeout(d time.Duration) *TickerScheduler {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *TickerScheduler) RegisterPeriodic(interval time.Duration, task Task) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if task == nil {
		return errors.New("task is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}
	s.tasks = append(s.tasks, periodic{interval: interval, task: task})
	return nil
}

func (s *TickerScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, p := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, p)
	}

	s.logger.Info("scheduler started", "tasks", len(s.tasks))
	return nil
}

// Stop cancels all loops and waits for in-flight runs or ctx, whichever
// comes first.
func (s *TickerScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TickerScheduler) loop(ctx context.Context, p periodic) {
	defer s.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, p.task)
		}
	}
}

func (s *TickerScheduler) run(ctx context.Context, task Task) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "task", task.Name(), "panic", r)
		}
	}()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		s.logger.Error("scheduled task failed", "task", task.Name(), "error", err)
		return
	}
	s.logger.Debug("scheduled task finished", "task", task.Name(), "took", time.Since(start).String())
}
