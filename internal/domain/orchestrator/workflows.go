package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/logger"
	"github.com/okian/detflow/pkg/metrics"
)

const persistTimeout = 5 * time.Second

// submit moves a new submission through created, evaluating and a terminal
// status, then bumps the caller's counter.
func (o *Orchestrator) submit(ctx context.Context, c model.Caller, msg model.InboundMessage) (string, error) {
	sub, err := o.store.CreateSubmission(ctx, model.Submission{
		CallerID:     c.ID,
		TaskType:     o.defaults.TaskType,
		TaskPrompt:   o.defaults.TaskPrompt,
		ResponseText: msg.Text,
		Status:       model.StatusCreated,
	})
	if err != nil {
		return "", fmt.Errorf("create submission: %w", err)
	}
	metrics.RecordSubmission(string(model.StatusCreated))

	sub.Status = model.StatusEvaluating
	if err := o.store.UpdateSubmission(ctx, sub); err != nil {
		return "", fmt.Errorf("mark evaluating: %w", err)
	}
	metrics.RecordSubmission(string(model.StatusEvaluating))

	ev, err := o.evaluator.Evaluate(ctx, model.EvaluationRequest{
		TaskType:     sub.TaskType,
		TaskPrompt:   sub.TaskPrompt,
		ResponseText: sub.ResponseText,
		UserLevel:    c.CurrentLevel,
	})
	if err != nil {
		o.markFailed(ctx, sub, err)
		return "", fmt.Errorf("evaluate submission %s: %w", sub.ID, err)
	}

	now := o.now()
	score := ev.OverallScore
	subscores := ev.Subscores
	sub.Status = model.StatusCompleted
	sub.OverallScore = &score
	sub.Subscores = &subscores
	sub.CEFRLevel = ev.CEFRLevel
	sub.Feedback = ev.Raw
	sub.EvaluatorComments = ev.Feedback
	sub.EvaluationError = ev.Error
	sub.EvaluatedAt = &now
	if err := o.store.UpdateSubmission(ctx, sub); err != nil {
		return "", fmt.Errorf("store evaluation: %w", err)
	}
	metrics.RecordSubmission(string(model.StatusCompleted))

	total, err := o.store.IncrementSubmissions(ctx, c.ID)
	if err != nil {
		metrics.RecordErrorByComponent("orchestrator", "increment_submissions")
		o.logger.Error(ctx, "increment submissions failed",
			logger.String("address", c.Address),
			logger.String("submission_id", sub.ID.String()),
			logger.Error(err))
	}
	if !ev.Fallback() && ev.CEFRLevel != "" && ev.CEFRLevel != c.CurrentLevel {
		if err := o.store.SetCallerLevel(ctx, c.ID, ev.CEFRLevel); err != nil {
			metrics.RecordErrorByComponent("orchestrator", "set_caller_level")
			o.logger.Error(ctx, "update caller level failed",
				logger.String("address", c.Address),
				logger.String("level", ev.CEFRLevel),
				logger.Error(err))
		}
	}

	o.logger.Info(ctx, "submission evaluated",
		logger.String("address", c.Address),
		logger.String("submission_id", sub.ID.String()),
		logger.Int("overall_score", score),
		logger.Bool("fallback", ev.Fallback()),
		logger.Int("total_submissions", total))
	return o.formatter.Evaluation(ev), nil
}

// markFailed stores the terminal failure even if ctx already ended.
func (o *Orchestrator) markFailed(ctx context.Context, sub model.Submission, cause error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := o.now()
	sub.Status = model.StatusFailed
	sub.EvaluationError = cause.Error()
	sub.EvaluatedAt = &now
	if err := o.store.UpdateSubmission(pctx, sub); err != nil {
		o.logger.Error(ctx, "mark submission failed", logger.String("submission_id", sub.ID.String()), logger.Error(err))
		return
	}
	metrics.RecordSubmission(string(model.StatusFailed))
}

func (o *Orchestrator) plan(ctx context.Context, c model.Caller) (string, error) {
	recent, err := o.store.RecentSubmissions(ctx, c.ID, o.historyWindow)
	if err != nil {
		return "", fmt.Errorf("recent submissions: %w", err)
	}

	req := model.PlanRequest{
		Level:        c.CurrentLevel,
		TargetScore:  c.TargetScore,
		HoursPerWeek: o.defaults.HoursPerWeek,
		Weaknesses:   Weaknesses(recent, o.weaknessThreshold),
	}
	if req.Level == "" {
		req.Level = o.defaults.Level
	}
	if req.TargetScore <= 0 {
		req.TargetScore = o.defaults.TargetScore
	}

	p, err := o.planner.CreatePlan(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create plan: %w", err)
	}

	if o.singleActivePlan {
		n, err := o.store.DeactivatePlans(ctx, c.ID)
		if err != nil {
			return "", fmt.Errorf("deactivate plans: %w", err)
		}
		if n > 0 {
			o.logger.Debug(ctx, "previous plans deactivated", logger.String("address", c.Address), logger.Int("count", n))
		}
	}

	stored, err := o.store.CreateStudyPlan(ctx, model.StudyPlan{
		CallerID:      c.ID,
		Title:         p.Title,
		Description:   fmt.Sprintf("Personalised %d-week plan", p.DurationWeeks),
		Payload:       p.Raw,
		DurationWeeks: p.DurationWeeks,
		Active:        true,
	})
	if err != nil {
		return "", fmt.Errorf("store plan: %w", err)
	}
	metrics.RecordPlanCreated()

	o.logger.Info(ctx, "study plan stored",
		logger.String("address", c.Address),
		logger.String("plan_id", stored.ID.String()),
		logger.Any("weaknesses", req.Weaknesses))
	return o.formatter.Plan(p), nil
}

func (o *Orchestrator) progress(ctx context.Context, c model.Caller) (string, error) {
	recent, err := o.store.RecentSubmissions(ctx, c.ID, o.historyWindow)
	if err != nil {
		return "", fmt.Errorf("recent submissions: %w", err)
	}
	p, ok := Summarize(recent)
	if !ok {
		return o.formatter.NoHistory(), nil
	}
	return o.formatter.Progress(p), nil
}
