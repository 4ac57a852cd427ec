// Package intent maps free-text channel messages to a fixed set of intents.
package intent

import (
	"strings"
	"unicode"
)

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	Submit   Intent = "submit"
	Plan     Intent = "plan"
	Progress Intent = "progress"
	Help     Intent = "help"
	Greeting Intent = "greeting"
	Unknown  Intent = "unknown"
)

// Actionable reports whether the intent drives a stateful workflow.
func (i Intent) Actionable() bool {
	return i == Submit || i == Plan || i == Progress
}

type rule struct {
	intent   Intent
	keywords []string
}

// rules are checked in order; the first rule with any match wins.
// Keywords are lower-case and may span several words.
var rules = []rule{
	{Submit, []string{
		"corrigir", "corrige", "avaliar", "avalie", "resposta", "submeter", "enviar",
		"grade", "evaluate", "correct", "submit", "check my answer", "score this",
	}},
	{Plan, []string{
		"plano", "cronograma", "estudar", "preparar",
		"study plan", "plan", "schedule", "prepare",
	}},
	{Progress, []string{
		"progresso", "evolução", "evolucao", "scores", "pontuação", "pontuacao",
		"progress", "my score", "my scores", "stats", "history",
	}},
	{Help, []string{
		"ajuda", "dúvida", "duvida", "como", "o que é", "o que e",
		"help", "how", "what is",
	}},
	{Greeting, []string{
		"olá", "ola", "oi", "bom dia", "boa tarde", "boa noite", "hey",
		"hello", "hi", "good morning", "good afternoon", "good evening",
	}},
}

// Classify returns the intent of text. It never fails; text without any
// known keyword, including the empty string, is Unknown.
func Classify(text string) Intent {
	norm := normalize(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(norm, " "+kw+" ") {
				return r.intent
			}
		}
	}
	return Unknown
}

// normalize lower-cases text, folds every run of non-letter, non-digit
// runes into one space and pads the result so whole words can be matched
// with a surrounding space.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
