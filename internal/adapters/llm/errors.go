package llm

import "errors"

var (
	// ErrNoChoices is returned when a completion carries no choices.
	ErrNoChoices = errors.New("llm: completion returned no choices")
	// ErrNoProvider is returned when no completer serves the selected model.
	ErrNoProvider = errors.New("llm: no provider for model")
	// ErrEmptyPrompt is returned when both prompts are empty.
	ErrEmptyPrompt = errors.New("llm: empty prompt")
)
