package service

import (
	"time"

	"github.com/okian/detflow/internal/adapters/llm"
	"github.com/okian/detflow/internal/adapters/lock"
	"github.com/okian/detflow/internal/adapters/repository"
	"github.com/okian/detflow/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses store instead of opening one from configuration. The
// service does not close an injected store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
		s.ownsStore = false
	}
}

// WithLocker uses l instead of building one from configuration.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithCompleter registers c for provider, replacing any configured endpoint
// of the same name.
func WithCompleter(provider string, c llm.Completer) Option {
	return func(s *Service) {
		if provider != "" && c != nil {
			s.completers[provider] = c
		}
	}
}

// WithRuntimeStatsInterval sets how often process gauges are refreshed.
func WithRuntimeStatsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.runtimeEvery = d
		}
	}
}
