package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talentpool/cv-pipeline/internal/pipeline"
)

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) error
}

// Queue is a bounded worker pool decoupling job submission from pipeline
// execution. Submission returns immediately; workers drain the channel and
// the buffer provides backpressure when they fall behind.
type Queue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan pipeline.Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan pipeline.Job, n)
		}
	}
}
func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(runner Runner, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		runner:  runner,
		logger:  logger,
		workers: 4,
		timeout: 15 * time.Minute,
		ch:      make(chan pipeline.Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.runner.Run(ctx, job)
					cancel()

					if err != nil {
						q.logger.Error("job failed", "worker_id", workerID, "session_id", job.SessionID, "error", err)
					} else {
						q.logger.Info("job completed", "worker_id", workerID, "session_id", job.SessionID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue schedules a job. When the buffer is full the call blocks until a
// worker frees a slot, which is the backpressure the submitter relies on.
func (q *Queue) Enqueue(_ context.Context, job pipeline.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "session_id", job.SessionID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued job", "session_id", job.SessionID, "cv_id", job.DocumentID)
	default:
		q.logger.Warn("queue full, applying backpressure", "session_id", job.SessionID)
		q.ch <- job
	}
	return nil
}

// Shutdown stops accepting work and waits for workers to drain, bounded by
// the context.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
