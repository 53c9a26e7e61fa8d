// Package worker runs submitted tasks on a fixed number of goroutines fed by
// a bounded queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/metrics"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool closed")
	ErrNilTask    = errors.New("nil task")
)

type Task func(ctx context.Context) error

// abortGrace bounds how long Stop waits for cancelled tasks to return once
// its own deadline has passed.
const abortGrace = 5 * time.Second

type Pool struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	jobs   chan Task
	n      int
	cancel context.CancelFunc

	closed bool
}

// NewPool creates a pool with the given number of workers and queue capacity.
// Non-positive values fall back to runtime.NumCPU() workers and a queue four
// times that size.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	return &Pool{jobs: make(chan Task, queueSize), n: workers}
}

// Start launches the workers. Tasks receive a context derived from ctx that
// Stop cancels when draining runs out of time. Cancelling ctx does not stop
// the workers, Stop does.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				metrics.SetQueueDepth(len(p.jobs))
				p.run(ctx, id, task)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker task panicked", "worker", id, "panic", r)
		}
	}()
	if err := task(ctx); err != nil {
		slog.Warn("worker task error", "worker", id, "error", err)
	}
}

// Submit enqueues task without blocking. It returns ErrQueueFull when the
// queue is saturated and ErrPoolClosed after Stop.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- task:
		metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

// Stop closes the queue and waits for queued and running tasks to finish.
// When ctx expires first, the task context is cancelled so running tasks and
// the ones still queued return early, and Stop waits up to abortGrace for
// them before returning ctx.Err().
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
	}

	slog.Warn("worker pool drain timed out, cancelling remaining tasks", "queued", len(p.jobs))
	if cancel != nil {
		cancel()
	}
	t := time.NewTimer(abortGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		slog.Error("worker tasks ignored cancellation")
	}
	return ctx.Err()
}
