// Package repository persists callers, submissions and study plans.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/metrics"
)

// Stats summarises stored records.
type Stats struct {
	Callers     int64 `json:"callers"`
	Submissions int64 `json:"submissions"`
	StudyPlans  int64 `json:"study_plans"`
}

// Store is the persistence surface the orchestrator depends on.
type Store interface {
	// GetCallerByAddress returns ErrNotFound for an unseen address.
	GetCallerByAddress(ctx context.Context, address string) (model.Caller, error)
	// CreateCaller returns ErrAlreadyExists if the address is taken.
	CreateCaller(ctx context.Context, c model.Caller) (model.Caller, error)
	TouchCaller(ctx context.Context, id uuid.UUID, at time.Time) error
	// IncrementSubmissions bumps the caller's counter and returns the new value.
	IncrementSubmissions(ctx context.Context, id uuid.UUID) (int, error)
	SetCallerLevel(ctx context.Context, id uuid.UUID, level string) error

	CreateSubmission(ctx context.Context, s model.Submission) (model.Submission, error)
	GetSubmission(ctx context.Context, id uuid.UUID) (model.Submission, error)
	// UpdateSubmission overwrites the mutable fields: status, scores,
	// level, feedback, comments, error and evaluation time.
	UpdateSubmission(ctx context.Context, s model.Submission) error
	// RecentSubmissions returns up to n submissions of a caller, newest first.
	RecentSubmissions(ctx context.Context, callerID uuid.UUID, n int) ([]model.Submission, error)

	CreateStudyPlan(ctx context.Context, p model.StudyPlan) (model.StudyPlan, error)
	// ActivePlans returns the caller's active plans, newest first.
	ActivePlans(ctx context.Context, callerID uuid.UUID) ([]model.StudyPlan, error)
	// DeactivatePlans clears the active flag on every plan of the caller.
	DeactivatePlans(ctx context.Context, callerID uuid.UUID) (int, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// MaxRecent caps RecentSubmissions.
const MaxRecent = 100

func clampRecent(n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidLimit
	}
	if n > MaxRecent {
		n = MaxRecent
	}
	return n, nil
}

// observe records one store operation; a miss is not a failure.
func observe(backend, op string, start time.Time, err *error) {
	failed := *err != nil && !errors.Is(*err, ErrNotFound)
	metrics.RecordRepositoryOp(backend, op, time.Since(start).Seconds(), failed)
}
