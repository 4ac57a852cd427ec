package worker

import (
	"time"

	"github.com/okian/detflow/internal/adapters/lock"
	"github.com/okian/detflow/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLocker serialises jobs per caller address through l as well.
func WithLocker(l lock.Locker) Option {
	return func(w *InMemoryWorker) {
		w.locker = l
	}
}

// WithJobTimeout bounds how long one message may take.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}
