package loadtest

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

var answers = []string{
	"The photo shows a crowded market where people are buying fresh vegetables.",
	"In the picture two children are playing football on a sandy beach at sunset.",
	"I think working from home is better because it saves time and money.",
	"My favourite holiday was a trip to the mountains with my family last year.",
	"The image shows an old library with tall shelves and a reading table.",
	"Public transport should be free because it reduces traffic and pollution.",
}

var greetings = []string{"hello", "hi there", "good morning", "olá"}

// Generate builds one conversation per learner: a greeting, the answers,
// a study plan request and a progress check. Some messages are repeated
// with the same id to exercise duplicate suppression.
func Generate(cfg Config) []Conversation {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	convs := make([]Conversation, cfg.Callers)
	for i := range convs {
		phone := fmt.Sprintf("+1555%07d", i)
		c := Conversation{Phone: phone}

		add := func(text string) {
			m := Message{MessageID: uuid.NewString(), Phone: phone, Message: text}
			c.Messages = append(c.Messages, m)
			if rng.Float64() < cfg.DuplicateRate {
				m.Redelivery = true
				c.Messages = append(c.Messages, m)
			}
		}

		add(greetings[rng.IntN(len(greetings))])
		for range cfg.AnswersPerCaller {
			add("Please evaluate my answer: " + answers[rng.IntN(len(answers))])
			c.Answers++
		}
		add("Can you make me a study plan?")
		add("Show my progress")
		convs[i] = c
	}
	return convs
}
