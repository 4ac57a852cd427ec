package repository

import "time"

// Option configures a Store implementation.
type Option func(*options)

type options struct {
	now         func() time.Time
	autoMigrate bool
}

func defaultOptions() options {
	return options{now: time.Now, autoMigrate: true}
}

// WithClock sets the time source used for timestamps the caller left zero.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithAutoMigrate toggles schema migration when a gorm store opens.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) {
		o.autoMigrate = enabled
	}
}
