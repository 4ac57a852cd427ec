// Package loadtest drives simulated learner conversations against a running
// service and checks that every accepted answer was counted exactly once.
package loadtest

import (
	"runtime"
	"time"
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL string // Base URL of the service
	Callers int    // Number of simulated learners
	// AnswersPerCaller is how many answers each learner submits.
	AnswersPerCaller int
	// DuplicateRate is the probability that a message is delivered twice.
	DuplicateRate float64
	Workers       int           // Learners talking at the same time
	Timeout       time.Duration // HTTP request timeout
	Seed          uint64        // Seed for the conversation generator
	OutputFile    string        // Where to save the generated script, empty to skip
}

// DefaultConfig returns the settings used when flags are left unset.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:9080",
		Callers:          50,
		AnswersPerCaller: 3,
		DuplicateRate:    0.1,
		Workers:          runtime.NumCPU() * 2,
		Timeout:          2 * time.Minute,
		Seed:             1,
	}
}

// Message is one webhook delivery.
type Message struct {
	MessageID string `json:"message_id"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	// Redelivery marks a repeat of an earlier message id.
	Redelivery bool `json:"redelivery,omitempty"`
}

// Conversation is the ordered script of one learner.
type Conversation struct {
	Phone    string    `json:"phone"`
	Messages []Message `json:"messages"`
	// Answers counts distinct answer submissions in Messages.
	Answers int `json:"answers"`
}

// Stats holds run statistics.
type Stats struct {
	Conversations int
	Sent          int
	Replied       int
	Duplicates    int
	Apologies     int
	Failed        int
	Verified      int
	Mismatched    int
	StartTime     time.Time
	Duration      time.Duration
}
