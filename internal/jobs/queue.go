// Package jobs is a small bounded worker pool. Sync requests are queued
// instead of spawning a goroutine per request, so a burst of API calls
// cannot pile up unbounded work.
package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/shrimpsizemoose/trekker/logger"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is shut down")
)

type Job func(ctx context.Context)

type Queue struct {
	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool

	cancel context.CancelFunc
}

// NewQueue starts workers goroutines draining a buffered queue.
func NewQueue(workers, buffer int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:   make(chan Job, buffer),
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(ctx, job)
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("Job panicked: %v", r)
		}
	}()
	job(ctx)
}

// Enqueue hands a job to the pool without blocking. A full queue is the
// caller's problem to report, typically as HTTP 503.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain. The
// context passed to running jobs is cancelled only after the drain, so
// in-flight syncs finish cleanly. Safe to call more than once.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}
