package llm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/detflow/internal/domain/selection"
	"github.com/okian/detflow/pkg/logger"
	"github.com/okian/detflow/pkg/metrics"
)

const tracerName = "github.com/okian/detflow/internal/adapters/llm"

// Completion is the text produced for an activity and where it came from.
type Completion struct {
	Text     string
	Model    string
	Provider string
}

// Router asks the selector which model suits an activity and forwards the
// prompt to the completer registered for that model's provider.
type Router struct {
	selector        *selection.Selector
	providers       map[string]Completer
	defaultProvider string
	tracer          trace.Tracer
	logger          logger.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithProvider registers c for catalog entries whose provider is name.
func WithProvider(name string, c Completer) RouterOption {
	return func(r *Router) {
		if name != "" && c != nil {
			r.providers[name] = c
		}
	}
}

// WithDefaultProvider names the completer used for models the catalog does
// not know or whose provider has no completer.
func WithDefaultProvider(name string) RouterOption {
	return func(r *Router) { r.defaultProvider = name }
}

// WithTracer sets the tracer for completion spans.
func WithTracer(t trace.Tracer) RouterOption {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l logger.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a Router. At least one provider must be registered.
func NewRouter(sel *selection.Selector, opts ...RouterOption) (*Router, error) {
	if sel == nil {
		return nil, fmt.Errorf("llm: nil selector")
	}
	r := &Router{
		selector:        sel,
		providers:       make(map[string]Completer),
		defaultProvider: "openai",
		tracer:          otel.Tracer(tracerName),
		logger:          logger.Get(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.providers) == 0 {
		return nil, ErrNoProvider
	}
	return r, nil
}

// Complete runs one prompt for activity on the recommended model.
func (r *Router) Complete(ctx context.Context, activity, system, user string) (Completion, error) {
	res, err := r.selector.Recommend(activity, nil, nil)
	metrics.RecordModelSelection(activity, res.SelectedModel, res.Outcome())
	if err != nil {
		return Completion{}, fmt.Errorf("select model for %s: %w", activity, err)
	}

	provider, c, err := r.completerFor(res.SelectedModel)
	if err != nil {
		return Completion{}, err
	}

	ctx, span := r.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.activity", activity),
		attribute.String("llm.model", res.SelectedModel),
		attribute.String("llm.provider", provider),
		attribute.String("llm.selection", res.Outcome()),
	))
	defer span.End()

	start := time.Now()
	text, err := c.Complete(ctx, Request{Model: res.SelectedModel, System: system, User: user})
	elapsed := time.Since(start)
	metrics.RecordProviderCall(activity, provider, elapsed.Seconds(), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn(ctx, "completion failed",
			logger.String("activity", activity),
			logger.String("model", res.SelectedModel),
			logger.String("provider", provider),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return Completion{}, err
	}

	r.logger.Debug(ctx, "completion done",
		logger.String("activity", activity),
		logger.String("model", res.SelectedModel),
		logger.Duration("elapsed", elapsed))
	return Completion{Text: text, Model: res.SelectedModel, Provider: provider}, nil
}

func (r *Router) completerFor(model string) (string, Completer, error) {
	provider := r.defaultProvider
	if e, err := r.selector.Entry(model); err == nil && e.Provider != "" {
		provider = e.Provider
	}
	if c, ok := r.providers[provider]; ok {
		return provider, c, nil
	}
	if c, ok := r.providers[r.defaultProvider]; ok {
		return r.defaultProvider, c, nil
	}
	return "", nil, fmt.Errorf("%w %s (provider %q)", ErrNoProvider, model, provider)
}
