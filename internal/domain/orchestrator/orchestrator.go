// Package orchestrator routes inbound messages to the submission, study plan
// and progress workflows and keeps caller state consistent while doing so.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/detflow/internal/adapters/repository"
	"github.com/okian/detflow/internal/domain/intent"
	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/logger"
	"github.com/okian/detflow/pkg/metrics"
)

const (
	tracerName   = "github.com/okian/detflow/internal/domain/orchestrator"
	snapshotSize = 5
	touchTimeout = 5 * time.Second

	workflowSubmit   = "submit"
	workflowPlan     = "plan"
	workflowProgress = "progress"
	workflowChat     = "chat"
)

// Evaluator grades one answer. A nil error with a fallback evaluation means
// grading degraded; an error means no evaluation exists.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (model.Evaluation, error)
}

// Planner generates a study plan.
type Planner interface {
	CreatePlan(ctx context.Context, req model.PlanRequest) (model.Plan, error)
}

// Chatter answers messages that start no workflow.
type Chatter interface {
	Chat(ctx context.Context, in intent.Intent, text string, snap model.Snapshot) (string, error)
}

// Formatter renders workflow results for the channel.
type Formatter interface {
	Evaluation(ev model.Evaluation) string
	Plan(p model.Plan) string
	Progress(p model.Progress) string
	NoHistory() string
}

// Orchestrator handles one inbound message at a time per caller. Callers
// must serialise messages of the same address; the worker dispatcher does.
type Orchestrator struct {
	store     repository.Store
	evaluator Evaluator
	planner   Planner
	chatter   Chatter
	formatter Formatter

	defaults          Defaults
	singleActivePlan  bool
	weaknessThreshold int
	historyWindow     int

	now    func() time.Time
	logger logger.Logger
	tracer trace.Tracer
}

// New creates an Orchestrator.
func New(store repository.Store, ev Evaluator, pl Planner, ch Chatter, f Formatter, opts ...Option) (*Orchestrator, error) {
	if store == nil || ev == nil || pl == nil || ch == nil || f == nil {
		return nil, errors.New("orchestrator: store and all providers are required")
	}
	o := &Orchestrator{
		store:             store,
		evaluator:         ev,
		planner:           pl,
		chatter:           ch,
		formatter:         f,
		defaults:          DefaultDefaults(),
		weaknessThreshold: DefaultWeaknessThreshold,
		historyWindow:     DefaultHistoryWindow,
		now:               time.Now,
		logger:            logger.Get(),
		tracer:            otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Handle processes one message and always produces a reply. Failures are
// logged and answered with an apology; the returned error is always nil.
func (o *Orchestrator) Handle(ctx context.Context, msg model.InboundMessage) (model.Reply, error) {
	in := intent.Classify(msg.Text)
	metrics.RecordMessage(string(in))

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle", trace.WithAttributes(
		attribute.String("caller.address", msg.Address),
		attribute.String("message.id", msg.MessageID),
		attribute.String("session.id", msg.SessionID),
		attribute.String("intent", string(in)),
	))
	defer span.End()

	reply := model.Reply{Address: msg.Address, Intent: string(in)}

	caller, err := o.resolveCaller(ctx, msg.Address)
	if err != nil {
		o.fail(ctx, span, "resolve caller", msg, in, err)
		reply.Text = ApologyGeneric
		return reply, nil
	}
	defer o.touch(ctx, caller)

	snap, err := o.snapshot(ctx, caller)
	if err != nil {
		o.fail(ctx, span, "build snapshot", msg, in, err)
		reply.Text = ApologyGeneric
		return reply, nil
	}

	workflow := workflowChat
	var run func(context.Context) (string, error)
	switch in {
	case intent.Submit:
		workflow = workflowSubmit
		run = func(ctx context.Context) (string, error) { return o.submit(ctx, caller, msg) }
	case intent.Plan:
		workflow = workflowPlan
		run = func(ctx context.Context) (string, error) { return o.plan(ctx, caller) }
	case intent.Progress:
		workflow = workflowProgress
		run = func(ctx context.Context) (string, error) { return o.progress(ctx, caller) }
	default:
		run = func(ctx context.Context) (string, error) { return o.chatter.Chat(ctx, in, msg.Text, snap) }
	}

	text, err := o.runWorkflow(ctx, workflow, run)
	if err != nil {
		o.fail(ctx, span, workflow+" workflow", msg, in, err)
		reply.Text = apologyFor(workflow)
		return reply, nil
	}
	reply.Text = text
	reply.Success = true
	return reply, nil
}

// runWorkflow runs fn inside its own span and turns a panic into an error.
func (o *Orchestrator) runWorkflow(ctx context.Context, name string, fn func(context.Context) (string, error)) (text string, err error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator."+name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s workflow: %v\n%s", name, r, debug.Stack())
		}
		metrics.RecordWorkflow(name, time.Since(start).Seconds(), err != nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, name+" failed")
		}
		span.End()
	}()
	return fn(ctx)
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, stage string, msg model.InboundMessage, in intent.Intent, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	metrics.RecordErrorByComponent("orchestrator", stage)
	o.logger.Error(ctx, stage+" failed",
		logger.String("address", msg.Address),
		logger.String("message_id", msg.MessageID),
		logger.String("session_id", msg.SessionID),
		logger.String("intent", string(in)),
		logger.Error(err))
}

// resolveCaller returns the caller for address, creating it on first
// contact. A concurrent creation is resolved by re-reading.
func (o *Orchestrator) resolveCaller(ctx context.Context, address string) (model.Caller, error) {
	c, err := o.store.GetCallerByAddress(ctx, address)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Caller{}, fmt.Errorf("get caller: %w", err)
	}

	now := o.now()
	c, err = o.store.CreateCaller(ctx, model.Caller{Address: address, CreatedAt: now, LastActiveAt: now})
	if errors.Is(err, repository.ErrAlreadyExists) {
		c, err = o.store.GetCallerByAddress(ctx, address)
	}
	if err != nil {
		return model.Caller{}, fmt.Errorf("create caller: %w", err)
	}
	o.logger.Info(ctx, "new caller", logger.String("address", address))
	return c, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, c model.Caller) (model.Snapshot, error) {
	recent, err := o.store.RecentSubmissions(ctx, c.ID, snapshotSize)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("recent submissions: %w", err)
	}
	snap := model.Snapshot{
		Address:          c.Address,
		Level:            c.CurrentLevel,
		TargetScore:      c.TargetScore,
		TotalSubmissions: c.TotalSubmissions,
		RecentScores:     make([]int, 0, len(recent)),
	}
	for i := range recent {
		if recent[i].Scored() {
			snap.RecentScores = append(snap.RecentScores, *recent[i].OverallScore)
		}
	}
	return snap, nil
}

// touch records activity even when the message deadline has passed.
func (o *Orchestrator) touch(ctx context.Context, c model.Caller) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
	defer cancel()
	if err := o.store.TouchCaller(tctx, c.ID, o.now()); err != nil {
		o.logger.Warn(ctx, "touch caller failed", logger.String("address", c.Address), logger.Error(err))
	}
}
