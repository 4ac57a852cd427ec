// Package queue buffers inbound messages between the transport and the
// dispatch workers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/metrics"
)

const defaultCapacity = 1024

// Result is what a worker hands back for a Job.
type Result struct {
	Reply model.Reply
	Err   error
}

// Job is one inbound message waiting for a worker. Reply must be buffered
// so a worker never blocks on a caller that stopped waiting.
type Job struct {
	Message    model.InboundMessage
	Reply      chan Result
	EnqueuedAt time.Time
}

// NewJob wraps msg with a one-slot reply channel.
func NewJob(msg model.InboundMessage) Job {
	return Job{Message: msg, Reply: make(chan Result, 1), EnqueuedAt: time.Now()}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue returns ErrBackpressure when full and ErrClosed after Close.
	Enqueue(ctx context.Context, j Job) error
	// Dequeue returns the job channel. It is closed by Close once drained.
	Dequeue() <-chan Job
	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		name:     "0",
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	metrics.UpdateQueueDepth(q.name, 0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueDepth(q.name, len(q.jobs))
		return nil
	default:
		metrics.RecordQueueBackpressure()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrBackpressure
	}
}

func (q *InMemoryQueue) Dequeue() <-chan Job {
	return q.jobs
}

func (q *InMemoryQueue) Len() int {
	n := len(q.jobs)
	metrics.UpdateQueueDepth(q.name, n)
	return n
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting jobs. Jobs already queued stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
