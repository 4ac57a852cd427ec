package dedupe

import "time"

// Option configures a window Deduper.
type Option func(*window)

// WithMaxSize bounds the number of remembered ids. Values <= 0 disable the bound.
func WithMaxSize(maxSize int) Option {
	return func(w *window) {
		w.maxSize = maxSize
	}
}

// WithTTL forgets ids after d. Values <= 0 keep ids until evicted by size.
func WithTTL(d time.Duration) Option {
	return func(w *window) {
		w.ttl = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *window) {
		if now != nil {
			w.now = now
		}
	}
}
