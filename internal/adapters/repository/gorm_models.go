package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/okian/detflow/internal/domain/model"
)

type callerRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Address          string    `gorm:"not null;uniqueIndex"`
	Name             string
	CurrentLevel     string
	TargetScore      int
	TotalSubmissions int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null"`
	LastActiveAt     time.Time `gorm:"not null;index"`
}

func (callerRow) TableName() string { return "callers" }

type submissionRow struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	CallerID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_submission_caller_seq,priority:1"`
	Seq               int64     `gorm:"not null;uniqueIndex:idx_submission_caller_seq,priority:2"`
	TaskType          string    `gorm:"not null"`
	TaskPrompt        string
	ResponseText      string
	Status            string `gorm:"not null;index"`
	OverallScore      *int
	Literacy          *int
	Comprehension     *int
	Conversation      *int
	Production        *int
	CEFRLevel         string `gorm:"column:cefr_level"`
	Feedback          datatypes.JSON
	EvaluatorComments string
	EvaluationError   string
	CreatedAt         time.Time `gorm:"not null"`
	EvaluatedAt       *time.Time
}

func (submissionRow) TableName() string { return "submissions" }

type studyPlanRow struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CallerID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_plan_caller_seq,priority:1"`
	Seq           int64     `gorm:"not null;uniqueIndex:idx_plan_caller_seq,priority:2"`
	Title         string    `gorm:"not null"`
	Description   string
	Payload       datatypes.JSON
	DurationWeeks int
	Active        bool      `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (studyPlanRow) TableName() string { return "study_plans" }

func toCallerRow(c model.Caller) callerRow {
	return callerRow(c)
}

func (r callerRow) model() model.Caller {
	return model.Caller(r)
}

func toSubmissionRow(s model.Submission) submissionRow {
	r := submissionRow{
		ID:                s.ID,
		CallerID:          s.CallerID,
		TaskType:          s.TaskType,
		TaskPrompt:        s.TaskPrompt,
		ResponseText:      s.ResponseText,
		Status:            string(s.Status),
		OverallScore:      s.OverallScore,
		CEFRLevel:         s.CEFRLevel,
		EvaluatorComments: s.EvaluatorComments,
		EvaluationError:   s.EvaluationError,
		CreatedAt:         s.CreatedAt,
		EvaluatedAt:       s.EvaluatedAt,
	}
	if len(s.Feedback) > 0 {
		r.Feedback = datatypes.JSON(s.Feedback)
	}
	if s.Subscores != nil {
		sc := *s.Subscores
		r.Literacy, r.Comprehension, r.Conversation, r.Production =
			&sc.Literacy, &sc.Comprehension, &sc.Conversation, &sc.Production
	}
	return r
}

func (r submissionRow) model() model.Submission {
	s := model.Submission{
		ID:                r.ID,
		CallerID:          r.CallerID,
		TaskType:          r.TaskType,
		TaskPrompt:        r.TaskPrompt,
		ResponseText:      r.ResponseText,
		Status:            model.SubmissionStatus(r.Status),
		OverallScore:      r.OverallScore,
		CEFRLevel:         r.CEFRLevel,
		EvaluatorComments: r.EvaluatorComments,
		EvaluationError:   r.EvaluationError,
		CreatedAt:         r.CreatedAt,
		EvaluatedAt:       r.EvaluatedAt,
	}
	if len(r.Feedback) > 0 {
		s.Feedback = []byte(r.Feedback)
	}
	if r.Literacy != nil || r.Comprehension != nil || r.Conversation != nil || r.Production != nil {
		s.Subscores = &model.Subscores{
			Literacy:      deref(r.Literacy),
			Comprehension: deref(r.Comprehension),
			Conversation:  deref(r.Conversation),
			Production:    deref(r.Production),
		}
	}
	return s
}

func toStudyPlanRow(p model.StudyPlan) studyPlanRow {
	r := studyPlanRow{
		ID:            p.ID,
		CallerID:      p.CallerID,
		Title:         p.Title,
		Description:   p.Description,
		DurationWeeks: p.DurationWeeks,
		Active:        p.Active,
		CreatedAt:     p.CreatedAt,
	}
	if len(p.Payload) > 0 {
		r.Payload = datatypes.JSON(p.Payload)
	}
	return r
}

func (r studyPlanRow) model() model.StudyPlan {
	p := model.StudyPlan{
		ID:            r.ID,
		CallerID:      r.CallerID,
		Title:         r.Title,
		Description:   r.Description,
		DurationWeeks: r.DurationWeeks,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.Payload) > 0 {
		p.Payload = []byte(r.Payload)
	}
	return p
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
