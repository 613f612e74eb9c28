package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const laneBuffer = 100

// lane is one key's FIFO. pending counts jobs enqueued but not yet
// finished and is only touched under Queue.mu.
type lane struct {
	ch      chan *Job
	pending int
}

// Queue manages per-key lanes with a global concurrency semaphore.
// Each lane is a FIFO channel drained by its own goroutine, so jobs sharing
// a key run strictly in order while the semaphore limits the number of jobs
// running across all lanes. A lane retires once it has drained.
type Queue struct {
	lanes     map[string]*lane
	semaphore *semaphore.Weighted
	pending   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue that allows up to maxConcurrent jobs to execute
// simultaneously across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[string]*lane),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// jobs to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for key, l := range q.lanes {
		close(l.ch)
		delete(q.lanes, key)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Job to its lane, creating the lane (and its goroutine) on
// first use. Returns an error if the lane's buffer is full or the queue is
// stopped.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.ctx.Err() != nil {
		return fmt.Errorf("queue not running")
	}

	l, exists := q.lanes[job.Lane]
	if !exists {
		l = &lane{ch: make(chan *Job, laneBuffer)}
		q.lanes[job.Lane] = l
		q.wg.Add(1)
		go q.processLane(job.Lane, l)
	}

	select {
	case l.ch <- job:
		l.pending++
		q.pending.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for lane %s", job.Lane)
	}
}

// Lanes reports how many lanes are currently open.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// processLane drains a single lane, acquiring a semaphore slot before
// running each job synchronously. It exits when the lane has no pending
// jobs left, removing the lane so the next Enqueue starts a fresh one.
func (q *Queue) processLane(key string, l *lane) {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-l.ch:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.run(job)
			q.semaphore.Release(1)
			if q.finish(key, l) {
				return
			}
		case <-q.ctx.Done():
			return
		}
	}
}

// finish records a completed job on l and reports whether the lane retired.
func (q *Queue) finish(key string, l *lane) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	l.pending--
	q.pending.Add(-1)
	if l.pending > 0 {
		return false
	}
	if q.lanes[key] == l {
		delete(q.lanes, key)
	}
	return true
}

func (q *Queue) run(job *Job) {
	started := time.Now()
	job.StartedAt = &started
	job.Status = JobStatusRunning

	defer func() {
		if r := recover(); r != nil {
			ended := time.Now()
			job.EndedAt = &ended
			job.Status = JobStatusFailed
			job.Error = fmt.Errorf("panic: %v", r)
			slog.Error("job panicked", "job_id", string(job.ID), "lane", job.Lane, "kind", job.Kind, "panic", r)
		}
	}()

	err := job.Fn(q.ctx)

	ended := time.Now()
	job.EndedAt = &ended
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err
		slog.Error("job failed", "job_id", string(job.ID), "lane", job.Lane, "kind", job.Kind, "error", err)
		return
	}
	job.Status = JobStatusComplete
	slog.Debug("job complete", "job_id", string(job.ID), "kind", job.Kind, "duration", ended.Sub(started))
}

// WaitIdle blocks until every enqueued job has finished, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
