package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBacklogFull is returned by Enqueue when the task buffer is at
// capacity. Callers own the persisted job row and decide whether to
// fail it or retry later.
var ErrBacklogFull = errors.New("jobs: backlog full")

// Task points a worker at a persisted job row. Only the identifier
// travels through the queue; workers re-read the row, so a retry
// always sees the latest state.
type Task struct {
	ID         string
	Kind       string
	Attempt    int
	EnqueuedAt time.Time
}

// HandlerFunc processes one task. A non-nil error triggers a retry
// until the attempt budget runs out.
type HandlerFunc func(ctx context.Context, task Task) error

// Config sizes the worker pool and its retry policy.
type Config struct {
	Workers     int
	Backlog     int
	MaxAttempts int
	RetryDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Backlog <= 0 {
		c.Backlog = c.Workers * 8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// Queue runs tasks on an in-process worker pool. Failed tasks retry on
// the same worker after a fixed delay, which throttles a struggling
// downstream store instead of hammering it.
type Queue struct {
	name   string
	handle HandlerFunc
	cfg    Config
	logger *zap.Logger

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New builds a queue around the handler. The logger may be nil.
func New(name string, handle HandlerFunc, cfg Config, logger *zap.Logger) *Queue {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:   name,
		handle: handle,
		cfg:    cfg,
		logger: logger.With(zap.String("queue", name)),
		tasks:  make(chan Task, cfg.Backlog),
	}
}

// Start spins up the workers. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run(i + 1)
	}
	q.started = true
	q.logger.Info("export workers started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels in-flight work and waits for the workers to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("export workers stopped")
}

// Enqueue hands a task to the pool without blocking the caller.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	started := q.started
	ctx := q.ctx
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("jobs: queue %s not started", q.name)
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("jobs: queue %s stopped: %w", q.name, ctx.Err())
	case q.tasks <- task:
		return nil
	default:
		return ErrBacklogFull
	}
}

func (q *Queue) run(workerID int) {
	defer q.wg.Done()
	log := q.logger.With(zap.Int("worker", workerID))
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			q.attempt(log, task)
		}
	}
}

func (q *Queue) attempt(log *zap.Logger, task Task) {
	err := q.handle(q.ctx, task)
	if err == nil {
		return
	}

	task.Attempt++
	if task.Attempt >= q.cfg.MaxAttempts {
		log.Error("task dropped after retries",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Int("attempts", task.Attempt),
			zap.Error(err))
		return
	}

	log.Warn("task failed, retrying",
		zap.String("task_id", task.ID),
		zap.String("kind", task.Kind),
		zap.Int("attempt", task.Attempt),
		zap.Error(err))

	timer := time.NewTimer(q.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
	case <-timer.C:
		q.attempt(log, task)
	}
}
