package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/talentpool/cv-pipeline/internal/pipeline"
)

type countingRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *countingRunner) Run(_ context.Context, job pipeline.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, job.SessionID)
	return nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestQueueRunsJobs(t *testing.T) {
	runner := &countingRunner{}
	q := NewQueue(runner, nil, WithWorkers(2), WithQueueSize(8))

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(context.Background(), pipeline.Job{SessionID: "sess"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	if runner.count() != 5 {
		t.Fatalf("runs = %d, want 5", runner.count())
	}
}

// TestQueueShutdownIdempotent verifies repeated shutdown and post-shutdown
// enqueues are safe no-ops.
func TestQueueShutdownIdempotent(t *testing.T) {
	runner := &countingRunner{}
	q := NewQueue(runner, nil, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
	q.Shutdown(ctx)

	if err := q.Enqueue(context.Background(), pipeline.Job{SessionID: "late"}); err != nil {
		t.Fatalf("post-shutdown enqueue should be a no-op, got %v", err)
	}
	if runner.count() != 0 {
		t.Fatal("no jobs should run after shutdown")
	}
}
