package ingest

import (
	"context"
	"sync"
	"time"

	"tunehub/internal/domain"
)

// MemoryQueue keeps jobs in process memory. Jobs do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]domain.IngestJob
	pending []string
	active  map[string]struct{}
	timers  map[string]*time.Timer
	notify  chan struct{}
	done    chan struct{}
	closed  bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:   make(map[string]domain.IngestJob),
		active: make(map[string]struct{}),
		timers: make(map[string]*time.Timer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job domain.IngestJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.jobs[job.ID] = cloneJob(job)
	q.pending = append(q.pending, job.ID)
	q.signalLocked()
	return nil
}

func (q *MemoryQueue) Claim(ctx context.Context) (domain.IngestJob, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return domain.IngestJob{}, ErrQueueClosed
		}
		if len(q.pending) > 0 {
			id := q.pending[0]
			q.pending = q.pending[1:]
			if len(q.pending) > 0 {
				q.signalLocked()
			}
			job, ok := q.jobs[id]
			if !ok {
				q.mu.Unlock()
				continue
			}
			q.active[id] = struct{}{}
			q.mu.Unlock()
			return cloneJob(job), nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.IngestJob{}, ctx.Err()
		case <-q.done:
			return domain.IngestJob{}, ErrQueueClosed
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Save(_ context.Context, job domain.IngestJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	q.jobs[job.ID] = cloneJob(job)
	return nil
}

func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, id)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, id string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(q.active, id)
	if delay <= 0 {
		q.pending = append(q.pending, id)
		q.signalLocked()
		return nil
	}
	q.timers[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, id)
		if q.closed {
			return
		}
		q.pending = append(q.pending, id)
		q.signalLocked()
	})
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (domain.IngestJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return domain.IngestJob{}, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (q *MemoryQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	recovered := 0
	for id := range q.active {
		delete(q.active, id)
		q.pending = append(q.pending, id)
		recovered++
	}
	if recovered > 0 {
		q.signalLocked()
	}
	return recovered, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	close(q.done)
	return nil
}

func (q *MemoryQueue) signalLocked() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func cloneJob(job domain.IngestJob) domain.IngestJob {
	out := job
	out.Hit = job.Hit.Clone()
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
