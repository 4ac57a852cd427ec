package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/internal/domain/selection"
	"github.com/okian/detflow/pkg/logger"
)

const (
	minScore      = 10
	maxScore      = 160
	fallbackScore = 50
	fallbackLevel = "B1"
)

var cefrLevels = map[string]bool{"A1": true, "A2": true, "B1": true, "B2": true, "C1": true, "C2": true}

const evaluatorPrompt = `You are an official Duolingo English Test (DET) examiner with CEFR C1-C2 expertise.

Evaluate the submission step by step on four equally weighted criteria:
1. Grammar and syntax: structure, tenses, agreement, articles and prepositions, error severity.
2. Vocabulary: range, word choice, collocations, register.
3. Relevance and task completion: addresses the prompt, stays on topic, enough detail.
4. Coherence and cohesion: links between ideas, transitions, clarity.

Scores use the DET scale 10-160. Subscores (each 10-160):
- literacy: reading and writing
- comprehension: understanding of the prompt
- conversation: natural flow and appropriateness
- production: coherent, complex output

CEFR mapping: 10-55 A1-A2, 60-85 B1, 90-115 B2, 120-140 C1, 145-160 C2.

Reply with one JSON object and nothing else:
{
  "overall_score": <int>,
  "subscores": {"literacy": <int>, "comprehension": <int>, "conversation": <int>, "production": <int>},
  "cefr_level": "<A1|A2|B1|B2|C1|C2>",
  "analysis": {"grammar": "...", "vocabulary": "...", "relevance": "...", "coherence": "..."},
  "strengths": ["..."],
  "weaknesses": ["..."],
  "feedback": "<constructive feedback for the student>",
  "improvement_suggestions": ["..."]
}

Be strict but fair and take the task type into account.`

// Evaluator grades answers through a Backend. Grading failures degrade to a
// neutral evaluation carrying the error instead of failing the call.
type Evaluator struct {
	base
	backend Backend
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(b Backend, opts ...Option) *Evaluator {
	return &Evaluator{base: newBase(opts), backend: b}
}

// Evaluate grades one answer. The error is non-nil only when ctx ended
// before an evaluation could be produced.
func (e *Evaluator) Evaluate(ctx context.Context, req model.EvaluationRequest) (model.Evaluation, error) {
	start := time.Now()

	c, err := e.backend.Complete(ctx, selection.ActivityEvaluation, evaluatorPrompt, evaluationRequest(req))
	if err != nil {
		if ctx.Err() != nil {
			return model.Evaluation{}, fmt.Errorf("evaluate: %w", ctx.Err())
		}
		e.logger.Error(ctx, "evaluation call failed", logger.String("task_type", req.TaskType), logger.Error(err))
		return FallbackEvaluation(err.Error()), nil
	}

	ev, err := parseEvaluation(c.Text)
	if err != nil {
		e.logger.Error(ctx, "evaluation output unusable",
			logger.String("task_type", req.TaskType),
			logger.String("model", c.Model),
			logger.Error(err))
		return FallbackEvaluation(err.Error()), nil
	}
	ev.Duration = time.Since(start)

	e.logger.Info(ctx, "evaluation completed",
		logger.String("task_type", req.TaskType),
		logger.String("model", c.Model),
		logger.Int("overall_score", ev.OverallScore),
		logger.Duration("elapsed", ev.Duration))
	return ev, nil
}

func evaluationRequest(req model.EvaluationRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TASK TYPE: %s\n\nTASK PROMPT:\n%s\n\nSTUDENT RESPONSE:\n%s\n", req.TaskType, req.TaskPrompt, req.ResponseText)
	if req.UserLevel != "" {
		fmt.Fprintf(&sb, "\nSTUDENT CURRENT LEVEL: %s\n", req.UserLevel)
	}
	sb.WriteString("\nEvaluate this submission and answer in the required JSON format.")
	return sb.String()
}

func parseEvaluation(text string) (model.Evaluation, error) {
	doc, err := extractObject(text)
	if err != nil {
		return model.Evaluation{}, err
	}
	if err := requireKeys(doc, "overall_score", "subscores"); err != nil {
		return model.Evaluation{}, err
	}

	overall := clampScore(doc.Get("overall_score").Int())
	level := strings.ToUpper(strings.TrimSpace(doc.Get("cefr_level").String()))
	if !cefrLevels[level] {
		level = LevelForScore(overall)
	}

	sub := doc.Get("subscores")
	return model.Evaluation{
		OverallScore: overall,
		Subscores: model.Subscores{
			Literacy:      clampScore(sub.Get("literacy").Int()),
			Comprehension: clampScore(sub.Get("comprehension").Int()),
			Conversation:  clampScore(sub.Get("conversation").Int()),
			Production:    clampScore(sub.Get("production").Int()),
		},
		CEFRLevel:   level,
		Feedback:    strings.TrimSpace(doc.Get("feedback").String()),
		Strengths:   stringList(doc.Get("strengths")),
		Weaknesses:  stringList(doc.Get("weaknesses")),
		Suggestions: stringList(doc.Get("improvement_suggestions")),
		Raw:         []byte(doc.Raw),
	}, nil
}

func clampScore(v int64) int {
	switch {
	case v < minScore:
		return minScore
	case v > maxScore:
		return maxScore
	default:
		return int(v)
	}
}

// LevelForScore maps a DET score to a CEFR level.
func LevelForScore(score int) string {
	switch {
	case score < 35:
		return "A1"
	case score < 60:
		return "A2"
	case score < 90:
		return "B1"
	case score < 120:
		return "B2"
	case score < 145:
		return "C1"
	default:
		return "C2"
	}
}

type fallbackDoc struct {
	OverallScore int             `json:"overall_score"`
	Subscores    model.Subscores `json:"subscores"`
	CEFRLevel    string          `json:"cefr_level"`
	Feedback     string          `json:"feedback"`
	Error        string          `json:"error"`
}

const fallbackFeedback = "We could not evaluate this answer right now. Please send it again in a moment."

// FallbackEvaluation is the neutral evaluation used when grading fails.
func FallbackEvaluation(reason string) model.Evaluation {
	if reason == "" {
		reason = "unknown error"
	}
	sub := model.Subscores{
		Literacy:      fallbackScore,
		Comprehension: fallbackScore,
		Conversation:  fallbackScore,
		Production:    fallbackScore,
	}
	raw, _ := json.Marshal(fallbackDoc{
		OverallScore: fallbackScore,
		Subscores:    sub,
		CEFRLevel:    fallbackLevel,
		Feedback:     fallbackFeedback,
		Error:        reason,
	})
	return model.Evaluation{
		OverallScore: fallbackScore,
		Subscores:    sub,
		CEFRLevel:    fallbackLevel,
		Feedback:     fallbackFeedback,
		Error:        reason,
		Raw:          raw,
	}
}
