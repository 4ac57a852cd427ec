package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/internal/domain/selection"
	"github.com/okian/detflow/pkg/logger"
)

const plannerPrompt = `You design personalised Duolingo English Test (DET) study plans.

Principles: tailor the plan to the student's level, target and time; set realistic milestones;
cover literacy, comprehension, conversation and production; increase difficulty gradually;
include rest days and review sessions.

Phases: assessment, foundation building, skill development, intensive practice, final preparation.
Cover the DET task types: read and complete, read aloud, write about the photo, listen and type,
speak about the photo, interactive reading, interactive listening.

Reply with one JSON object and nothing else:
{
  "plan_title": "...",
  "duration_weeks": <int>,
  "target_score": <int 10-160>,
  "current_level": "<CEFR level>",
  "expected_improvement": <int>,
  "weekly_schedule": [
    {"week": <int>, "focus_areas": ["..."], "daily_tasks": [
      {"day": "<weekday>", "duration_minutes": <int>, "tasks": [
        {"task_type": "...", "description": "...", "goal": "...", "resources": ["..."]}]}],
     "checkpoint": "..."}
  ],
  "priority_weaknesses": ["..."],
  "study_tips": ["..."],
  "motivation_message": "..."
}`

// Planner generates study plans through a Backend. Unlike the evaluator it
// reports failures to the caller.
type Planner struct {
	base
	backend Backend
}

// NewPlanner creates a Planner.
func NewPlanner(b Backend, opts ...Option) *Planner {
	return &Planner{base: newBase(opts), backend: b}
}

// CreatePlan generates a plan for req.
func (p *Planner) CreatePlan(ctx context.Context, req model.PlanRequest) (model.Plan, error) {
	c, err := p.backend.Complete(ctx, selection.ActivityStudyPlan, plannerPrompt, planRequest(req))
	if err != nil {
		return model.Plan{}, fmt.Errorf("create plan: %w", err)
	}

	plan, err := parsePlan(c.Text)
	if err != nil {
		p.logger.Error(ctx, "plan output unusable", logger.String("model", c.Model), logger.Error(err))
		return model.Plan{}, fmt.Errorf("create plan: %w", err)
	}
	if plan.TargetScore == 0 {
		plan.TargetScore = req.TargetScore
	}
	if plan.CurrentLevel == "" {
		plan.CurrentLevel = req.Level
	}

	p.logger.Info(ctx, "study plan created",
		logger.String("level", req.Level),
		logger.Int("target_score", req.TargetScore),
		logger.Int("duration_weeks", plan.DurationWeeks))
	return plan, nil
}

func planRequest(req model.PlanRequest) string {
	var sb strings.Builder
	sb.WriteString("Create a personalised DET study plan for this student:\n")
	fmt.Fprintf(&sb, "- Current level: %s\n", req.Level)
	fmt.Fprintf(&sb, "- Target score: %d\n", req.TargetScore)
	fmt.Fprintf(&sb, "- Available study time: %d hours per week\n", req.HoursPerWeek)
	if len(req.Weaknesses) > 0 {
		fmt.Fprintf(&sb, "- Weaknesses: %s\n", strings.Join(req.Weaknesses, ", "))
	}
	if len(req.Strengths) > 0 {
		fmt.Fprintf(&sb, "- Strengths: %s\n", strings.Join(req.Strengths, ", "))
	}
	if req.DeadlineWeeks > 0 {
		fmt.Fprintf(&sb, "- Study duration: %d weeks\n", req.DeadlineWeeks)
	} else {
		sb.WriteString("- Study duration: recommend the optimal duration\n")
	}
	sb.WriteString("\nFocus on the weaknesses while keeping the strengths. Answer in the required JSON format.")
	return sb.String()
}

func parsePlan(text string) (model.Plan, error) {
	doc, err := extractObject(text)
	if err != nil {
		return model.Plan{}, err
	}
	if err := requireKeys(doc, "plan_title", "duration_weeks"); err != nil {
		return model.Plan{}, err
	}

	plan := model.Plan{
		Title:               strings.TrimSpace(doc.Get("plan_title").String()),
		DurationWeeks:       int(doc.Get("duration_weeks").Int()),
		TargetScore:         int(doc.Get("target_score").Int()),
		CurrentLevel:        strings.TrimSpace(doc.Get("current_level").String()),
		ExpectedImprovement: int(doc.Get("expected_improvement").Int()),
		PriorityWeaknesses:  stringList(doc.Get("priority_weaknesses")),
		StudyTips:           stringList(doc.Get("study_tips")),
		Motivation:          strings.TrimSpace(doc.Get("motivation_message").String()),
		Raw:                 []byte(doc.Raw),
	}
	if plan.DurationWeeks <= 0 {
		return model.Plan{}, fmt.Errorf("%w: duration_weeks must be positive", ErrMalformedOutput)
	}
	for _, w := range doc.Get("weekly_schedule").Array() {
		plan.Weeks = append(plan.Weeks, model.PlanWeek{
			Week:       int(w.Get("week").Int()),
			FocusAreas: stringList(w.Get("focus_areas")),
			Checkpoint: strings.TrimSpace(w.Get("checkpoint").String()),
		})
	}
	return plan, nil
}
