// Package providers implements the capability providers the orchestrator
// consumes: answer evaluation, study planning, conversational replies and
// channel formatting.
package providers

import (
	"context"

	"github.com/okian/detflow/internal/adapters/llm"
	"github.com/okian/detflow/pkg/logger"
)

// Backend runs one prompt for an activity. *llm.Router satisfies it.
type Backend interface {
	Complete(ctx context.Context, activity, system, user string) (llm.Completion, error)
}

// Option configures a provider.
type Option func(*base)

type base struct {
	logger logger.Logger
}

func newBase(opts []Option) base {
	b := base{logger: logger.Get()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithLogger sets the provider logger.
func WithLogger(l logger.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}
