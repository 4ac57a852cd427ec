package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/detflow/internal/domain/intent"
	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/internal/domain/selection"
	"github.com/okian/detflow/pkg/logger"
)

const chatPrompt = `You are a friendly DET (Duolingo English Test) study assistant on a messaging channel.
Keep replies short, warm and easy to read on a phone. Never include raw JSON.
You can: evaluate practice answers, create study plans, show progress, answer questions about the test.
Invite the user to send an answer, ask for a plan, or check their progress.`

const (
	GreetingText = "Hello! Welcome to DET Flow, your Duolingo English Test practice assistant.\n\n" +
		"How can I help today?\n" +
		"- Send an answer to be evaluated\n" +
		"- Ask for a study plan\n" +
		"- Check your progress\n" +
		"- Ask a question"
	HelpText = "Here is what I can do:\n" +
		"- Evaluate: send \"evaluate\" followed by your answer\n" +
		"- Plan: ask for a \"study plan\"\n" +
		"- Progress: ask for your \"progress\"\n\n" +
		"Scores follow the DET scale from 10 to 160."
	UnknownText = "Sorry, I did not get that. You can send an answer to evaluate, ask for a study plan, or check your progress."
)

// Chatter answers messages that need no workflow. With a Backend it asks a
// model and falls back to canned text on failure; without one it only uses
// canned text.
type Chatter struct {
	base
	backend Backend
}

// NewChatter creates a Chatter. b may be nil.
func NewChatter(b Backend, opts ...Option) *Chatter {
	return &Chatter{base: newBase(opts), backend: b}
}

// Chat returns the reply for text classified as in.
func (c *Chatter) Chat(ctx context.Context, in intent.Intent, text string, snap model.Snapshot) (string, error) {
	canned := cannedReply(in)
	if c.backend == nil {
		return canned, nil
	}

	out, err := c.backend.Complete(ctx, selection.ActivityChat, chatPrompt, chatRequest(text, snap))
	if err != nil {
		c.logger.Warn(ctx, "chat completion failed, using canned reply",
			logger.String("intent", string(in)), logger.Error(err))
		return canned, nil
	}
	reply := strings.TrimSpace(out.Text)
	if reply == "" {
		return canned, nil
	}
	return reply, nil
}

func cannedReply(in intent.Intent) string {
	switch in {
	case intent.Greeting:
		return GreetingText
	case intent.Help:
		return HelpText
	default:
		return UnknownText
	}
}

func chatRequest(text string, snap model.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "USER MESSAGE:\n%s\n\nUSER CONTEXT:\n", text)
	var ctx []string
	if snap.Level != "" {
		ctx = append(ctx, "Current level: "+snap.Level)
	}
	if snap.TargetScore > 0 {
		ctx = append(ctx, fmt.Sprintf("Target score: %d", snap.TargetScore))
	}
	if len(snap.RecentScores) > 0 {
		ctx = append(ctx, fmt.Sprintf("Recent scores: %v", snap.RecentScores))
	}
	if len(ctx) == 0 {
		ctx = append(ctx, "No context available")
	}
	sb.WriteString(strings.Join(ctx, "\n"))
	return sb.String()
}
