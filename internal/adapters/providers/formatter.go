package providers

import (
	"fmt"
	"strings"

	"github.com/okian/detflow/internal/domain/model"
)

// Formatter renders workflow results as plain channel text.
type Formatter struct{}

// NewFormatter creates a Formatter.
func NewFormatter() *Formatter { return &Formatter{} }

// Evaluation renders a graded answer.
func (Formatter) Evaluation(ev model.Evaluation) string {
	var sb strings.Builder
	sb.WriteString("Evaluation complete!\n\n")
	fmt.Fprintf(&sb, "Overall score: %d/160\n", ev.OverallScore)
	fmt.Fprintf(&sb, "CEFR level: %s\n\n", ev.CEFRLevel)
	sb.WriteString("Subscores:\n")
	fmt.Fprintf(&sb, "Literacy: %d\n", ev.Subscores.Literacy)
	fmt.Fprintf(&sb, "Comprehension: %d\n", ev.Subscores.Comprehension)
	fmt.Fprintf(&sb, "Conversation: %d\n", ev.Subscores.Conversation)
	fmt.Fprintf(&sb, "Production: %d\n", ev.Subscores.Production)
	if ev.Feedback != "" {
		fmt.Fprintf(&sb, "\nFeedback:\n%s\n", ev.Feedback)
	}
	if len(ev.Suggestions) > 0 {
		sb.WriteString("\nTo improve:\n")
		for _, s := range ev.Suggestions {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Plan renders a plan overview.
func (Formatter) Plan(p model.Plan) string {
	title := p.Title
	if title == "" {
		title = "Your study plan"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", title)
	fmt.Fprintf(&sb, "Duration: %d weeks\n", p.DurationWeeks)
	fmt.Fprintf(&sb, "Target: %d points\n", p.TargetScore)
	fmt.Fprintf(&sb, "Expected improvement: +%d points\n", p.ExpectedImprovement)
	if len(p.Weeks) > 0 && len(p.Weeks[0].FocusAreas) > 0 {
		fmt.Fprintf(&sb, "Week 1 focus: %s\n", strings.Join(p.Weeks[0].FocusAreas, ", "))
	}
	if p.Motivation != "" {
		fmt.Fprintf(&sb, "\n%s\n", p.Motivation)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Progress renders a progress summary.
func (Formatter) Progress(p model.Progress) string {
	var sb strings.Builder
	sb.WriteString("Your DET progress\n\n")
	fmt.Fprintf(&sb, "Total submissions: %d\n", p.Submissions)
	fmt.Fprintf(&sb, "Average score: %d/160\n", p.Average)
	fmt.Fprintf(&sb, "Best score: %d/160\n", p.Best)
	fmt.Fprintf(&sb, "Latest score: %d/160\n", p.Latest)
	if len(p.Recent) > 0 {
		sb.WriteString("\nLast scores:\n")
		for _, s := range p.Recent {
			fmt.Fprintf(&sb, "- %d/160 (%s)\n", s.Score, s.At.Format("02/01"))
		}
	}
	sb.WriteString("\nKeep practicing!")
	return sb.String()
}

// NoHistory is the progress reply for a caller without scored submissions.
func (Formatter) NoHistory() string {
	return "You have no evaluated submissions yet. Send your first answer to start tracking your progress!"
}
