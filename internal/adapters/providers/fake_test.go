package providers

import (
	"context"

	"github.com/okian/detflow/internal/adapters/llm"
)

type call struct {
	activity, system, user string
}

type fakeBackend struct {
	text  string
	err   error
	calls []call
}

func (f *fakeBackend) Complete(ctx context.Context, activity, system, user string) (llm.Completion, error) {
	f.calls = append(f.calls, call{activity, system, user})
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{Text: f.text, Model: "gpt-4o", Provider: "openai"}, nil
}
