package worker

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/detflow/internal/adapters/mq/queue"
	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/logger"
	"github.com/okian/detflow/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

var (
	// ErrNotStarted is returned by Submit before Start.
	ErrNotStarted = errors.New("dispatcher not started")
	// ErrHandlerPanic wraps a panic raised while handling a message.
	ErrHandlerPanic = errors.New("handler panicked")
)

// Dispatcher shards messages by caller address over single-worker queues.
// Messages from one caller land on one shard and are handled in arrival order.
type Dispatcher struct {
	queues  []*queue.InMemoryQueue
	workers []*InMemoryWorker

	mu      sync.RWMutex
	started bool
	stop    context.CancelFunc

	logger logger.Logger
}

// NewDispatcher creates shards shards each buffering up to perShard messages.
func NewDispatcher(shards, perShard int, h Handler, opts ...Option) *Dispatcher {
	if shards < 1 {
		shards = runtime.NumCPU()
	}
	d := &Dispatcher{
		queues:  make([]*queue.InMemoryQueue, shards),
		workers: make([]*InMemoryWorker, shards),
		logger:  logger.Get().Named("dispatcher"),
	}
	for i := 0; i < shards; i++ {
		name := strconv.Itoa(i)
		d.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(perShard), queue.WithName(name))
		wopts := append([]Option{WithName("worker-" + name)}, opts...)
		d.workers[i] = NewInMemoryWorker(d.queues[i], h, wopts...)
	}
	metrics.UpdateQueueCapacity(shards * d.queues[0].Capacity())
	return d
}

// Start launches one goroutine per shard. Workers keep ctx's values but not
// its cancellation: they run until Shutdown drains them or its deadline
// passes.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.stop = cancel
	for _, w := range d.workers {
		go w.Run(rctx)
	}
	d.started = true
	metrics.UpdateWorkerCount(len(d.workers))
}

// Shard returns the shard index for a caller address.
func (d *Dispatcher) Shard(address string) int {
	return int(xxhash.Sum64String(address) % uint64(len(d.queues)))
}

// Submit queues msg and waits for its reply. It returns
// queue.ErrBackpressure without waiting when the caller's shard is full.
func (d *Dispatcher) Submit(ctx context.Context, msg model.InboundMessage) (model.Reply, error) {
	d.mu.RLock()
	started := d.started
	d.mu.RUnlock()
	if !started {
		return model.Reply{}, ErrNotStarted
	}

	j := queue.NewJob(msg)
	if err := d.queues[d.Shard(msg.Address)].Enqueue(ctx, j); err != nil {
		return model.Reply{}, err
	}
	select {
	case res := <-j.Reply:
		return res.Reply, res.Err
	case <-ctx.Done():
		return model.Reply{}, ctx.Err()
	}
}

// Pending returns the number of queued messages across shards.
func (d *Dispatcher) Pending() int {
	n := 0
	for _, q := range d.queues {
		n += q.Len()
	}
	return n
}

// Shards returns the number of shards.
func (d *Dispatcher) Shards() int { return len(d.queues) }

// Shutdown stops intake, lets workers drain their queues and waits for them.
// When ctx or the shutdown timeout ends first, jobs in flight are cancelled
// and jobs still queued are answered with queue.ErrClosed.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	for _, q := range d.queues {
		if err := q.Close(); err != nil {
			d.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	d.mu.RLock()
	started, stop := d.started, d.stop
	d.mu.RUnlock()
	if !started {
		return nil
	}
	defer stop()

	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range d.workers {
		select {
		case <-w.Done():
		case <-sctx.Done():
			if !timedOut {
				timedOut = true
				stop()
			}
			d.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return sctx.Err()
	}
	return nil
}
