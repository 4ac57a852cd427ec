package orchestrator

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/okian/detflow/pkg/logger"
)

// Defaults fill in what a single message cannot carry.
type Defaults struct {
	TaskType     string
	TaskPrompt   string
	Level        string
	TargetScore  int
	HoursPerWeek int
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		TaskType:     "write_about_photo",
		TaskPrompt:   "Write about what you see in the photo.",
		Level:        "B1",
		TargetScore:  120,
		HoursPerWeek: 10,
	}
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithDefaults replaces the non-zero fields of the defaults.
func WithDefaults(d Defaults) Option {
	return func(o *Orchestrator) {
		if d.TaskType != "" {
			o.defaults.TaskType = d.TaskType
		}
		if d.TaskPrompt != "" {
			o.defaults.TaskPrompt = d.TaskPrompt
		}
		if d.Level != "" {
			o.defaults.Level = d.Level
		}
		if d.TargetScore > 0 {
			o.defaults.TargetScore = d.TargetScore
		}
		if d.HoursPerWeek > 0 {
			o.defaults.HoursPerWeek = d.HoursPerWeek
		}
	}
}

// WithSingleActivePlan deactivates earlier plans when a new one is stored.
func WithSingleActivePlan(on bool) Option {
	return func(o *Orchestrator) { o.singleActivePlan = on }
}

// WithWeaknessThreshold sets the subscore average under which a skill is weak.
func WithWeaknessThreshold(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.weaknessThreshold = n
		}
	}
}

// WithHistoryWindow sets how many recent submissions plan and progress look at.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyWindow = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer for message and workflow spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}
