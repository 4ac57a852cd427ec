// Package worker runs inbound messages through the orchestrator with
// per-caller ordering.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/detflow/internal/adapters/lock"
	"github.com/okian/detflow/internal/adapters/mq/queue"
	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/logger"
	"github.com/okian/detflow/pkg/metrics"
)

const defaultJobTimeout = 60 * time.Second

// Handler processes one inbound message to completion.
type Handler interface {
	Handle(ctx context.Context, msg model.InboundMessage) (model.Reply, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg model.InboundMessage) (model.Reply, error)

func (f HandlerFunc) Handle(ctx context.Context, msg model.InboundMessage) (model.Reply, error) {
	return f(ctx, msg)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue() <-chan queue.Job
}

// InMemoryWorker drains one queue sequentially, so jobs on the same queue
// never overlap.
type InMemoryWorker struct {
	queue      Queue
	handler    Handler
	locker     lock.Locker
	name       string
	jobTimeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading q.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		handler:    h,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until the queue is closed and drained, Shutdown is
// called, or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			w.abandon(jobs, ctx.Err())
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown stops the worker after the job in flight.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// abandon answers every job already buffered so no submitter waits for a
// worker that has gone.
func (w *InMemoryWorker) abandon(jobs <-chan queue.Job, cause error) {
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			j.Reply <- queue.Result{Err: fmt.Errorf("%w: %w", queue.ErrClosed, cause)}
		default:
			return
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) {
	start := time.Now()
	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	reply, err := w.handle(jctx, j.Message)
	metrics.RecordWorkerProcessed(time.Since(start).Seconds(), err != nil)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "handler_error")
		w.logger.Error(ctx, "message processing failed",
			logger.String("worker", w.name),
			logger.String("message_id", j.Message.MessageID),
			logger.Error(err),
		)
	}
	j.Reply <- queue.Result{Reply: reply, Err: err}
}

func (w *InMemoryWorker) handle(ctx context.Context, msg model.InboundMessage) (_ model.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	if w.locker == nil {
		return w.handler.Handle(ctx, msg)
	}
	release, err := w.locker.Acquire(ctx, msg.Address)
	if err != nil {
		return model.Reply{}, fmt.Errorf("lock caller: %w", err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			w.logger.Warn(ctx, "caller lock release failed", logger.Error(rerr))
		}
	}()
	return w.handler.Handle(ctx, msg)
}
