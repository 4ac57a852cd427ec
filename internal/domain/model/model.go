// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Caller is the end user talking to the service over a messaging channel.
type Caller struct {
	ID               uuid.UUID
	Address          string // stable channel address, e.g. a phone number
	Name             string
	CurrentLevel     string // CEFR level, empty until known
	TargetScore      int
	TotalSubmissions int
	CreatedAt        time.Time
	LastActiveAt     time.Time
}

// SubmissionStatus is the lifecycle state of a Submission.
type SubmissionStatus string

const (
	StatusCreated    SubmissionStatus = "created"
	StatusEvaluating SubmissionStatus = "evaluating"
	StatusCompleted  SubmissionStatus = "completed"
	StatusFailed     SubmissionStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Subscores are the four skill scores produced by an evaluation.
type Subscores struct {
	Literacy      int `json:"literacy"`
	Comprehension int `json:"comprehension"`
	Conversation  int `json:"conversation"`
	Production    int `json:"production"`
}

// Submission is one evaluation request.
type Submission struct {
	ID           uuid.UUID
	CallerID     uuid.UUID
	TaskType     string
	TaskPrompt   string
	ResponseText string
	Status       SubmissionStatus

	// Nil until evaluated.
	OverallScore *int
	Subscores    *Subscores

	CEFRLevel         string
	Feedback          []byte // structured feedback payload (JSON)
	EvaluatorComments string
	EvaluationError   string

	CreatedAt   time.Time
	EvaluatedAt *time.Time
}

// Scored reports whether the submission carries an overall score.
func (s *Submission) Scored() bool { return s != nil && s.OverallScore != nil }

// StudyPlan is one generated plan.
type StudyPlan struct {
	ID            uuid.UUID
	CallerID      uuid.UUID
	Title         string
	Description   string
	Payload       []byte // full structured plan (JSON)
	DurationWeeks int
	Active        bool
	CreatedAt     time.Time
}

// InboundMessage is a free-text message received from the channel.
type InboundMessage struct {
	MessageID  string // transport id used for duplicate suppression, may be empty
	Address    string
	Text       string
	SessionID  string
	ReceivedAt time.Time
}

// Snapshot is the per-message context handed to capability providers.
type Snapshot struct {
	Address          string
	Level            string
	TargetScore      int
	TotalSubmissions int
	RecentScores     []int // newest first
}

// Reply is the outbound answer to one inbound message.
type Reply struct {
	Address string
	Text    string
	Intent  string
	// Success is false when the caller received an apology instead of a result.
	Success bool
}

// EvaluationRequest is the input of one evaluation.
type EvaluationRequest struct {
	TaskType     string
	TaskPrompt   string
	ResponseText string
	UserLevel    string // optional
}

// Evaluation is the structured outcome of grading one answer.
type Evaluation struct {
	OverallScore int
	Subscores    Subscores
	CEFRLevel    string
	Feedback     string
	Strengths    []string
	Weaknesses   []string
	Suggestions  []string
	// Error is set on the neutral fallback produced when grading failed.
	Error    string
	Duration time.Duration
	Raw      []byte // full JSON document as returned by the evaluator
}

// Fallback reports whether e is the neutral stand-in for a failed grading.
func (e Evaluation) Fallback() bool { return e.Error != "" }

// PlanRequest is the input of study plan generation.
type PlanRequest struct {
	Level         string
	TargetScore   int
	HoursPerWeek  int
	Weaknesses    []string
	Strengths     []string
	DeadlineWeeks int // 0 lets the planner pick
}

// PlanWeek is one week of a generated plan.
type PlanWeek struct {
	Week       int
	FocusAreas []string
	Checkpoint string
}

// Plan is a generated study plan.
type Plan struct {
	Title               string
	DurationWeeks       int
	TargetScore         int
	CurrentLevel        string
	ExpectedImprovement int
	Weeks               []PlanWeek
	PriorityWeaknesses  []string
	StudyTips           []string
	Motivation          string
	Raw                 []byte
}

// ScoreAt is one scored submission in a progress summary.
type ScoreAt struct {
	Score int
	At    time.Time
}

// Progress summarises a caller's recent submissions.
type Progress struct {
	Submissions int // submissions in the window, scored or not
	Average     int
	Best        int
	Latest      int
	Recent      []ScoreAt // newest first, at most five
}
