// Package lock serialises work per caller, in process or across replicas.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/detflow/pkg/metrics"
)

// ErrNotHeld is returned when releasing a lock that expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Release gives a lock back.
type Release func(ctx context.Context) error

// Locker hands out exclusive per-key locks. Acquire blocks until the lock
// is held or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{} // buffered(1): holding the token means holding the lock
	refs int
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	start := time.Now()
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	default:
		metrics.RecordLockContention()
		select {
		case s.ch <- struct{}{}:
		case <-ctx.Done():
			l.unref(key, s)
			return nil, ctx.Err()
		}
	}
	metrics.RecordLockWait(time.Since(start).Seconds())

	var once sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
			err = nil
		})
		return err
	}, nil
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
