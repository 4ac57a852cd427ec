package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/detflow/internal/domain/model"
)

// Submission listing bounds.
const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// ReadHandler serves caller and submission lookups.
type ReadHandler struct {
	deps Dependencies
}

// NewReadHandler creates a new read handler.
func NewReadHandler(deps Dependencies) *ReadHandler {
	return &ReadHandler{deps: deps}
}

type callerResponse struct {
	ID               string    `json:"id"`
	Address          string    `json:"address"`
	Name             string    `json:"name,omitempty"`
	CurrentLevel     string    `json:"current_level,omitempty"`
	TargetScore      int       `json:"target_score,omitempty"`
	TotalSubmissions int       `json:"total_submissions"`
	CreatedAt        time.Time `json:"created_at"`
	LastActiveAt     time.Time `json:"last_active_at"`
}

type submissionResponse struct {
	ID                string           `json:"id"`
	CallerID          string           `json:"caller_id"`
	TaskType          string           `json:"task_type"`
	TaskPrompt        string           `json:"task_prompt,omitempty"`
	ResponseText      string           `json:"response_text"`
	Status            string           `json:"status"`
	OverallScore      *int             `json:"overall_score,omitempty"`
	Subscores         *model.Subscores `json:"subscores,omitempty"`
	CEFRLevel         string           `json:"cefr_level,omitempty"`
	Feedback          json.RawMessage  `json:"feedback,omitempty"`
	EvaluatorComments string           `json:"evaluator_comments,omitempty"`
	EvaluationError   string           `json:"evaluation_error,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	EvaluatedAt       *time.Time       `json:"evaluated_at,omitempty"`
}

type submissionsResponse struct {
	Address     string               `json:"address"`
	Submissions []submissionResponse `json:"submissions"`
}

// HandleGetCaller handles GET /api/callers/{address}.
func (h *ReadHandler) HandleGetCaller(w http.ResponseWriter, r *http.Request) {
	const op = "caller.get"
	address := strings.TrimSpace(r.PathValue("address"))
	if address == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	c, err := h.deps.Caller(r.Context(), address)
	if err != nil {
		writeError(w, WrapKind(op, classify(err), err))
		return
	}
	writeJSON(w, http.StatusOK, toCallerResponse(c))
}

// HandleListSubmissions handles GET /api/callers/{address}/submissions?limit=N.
func (h *ReadHandler) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	const op = "caller.submissions"
	address := strings.TrimSpace(r.PathValue("address"))
	if address == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	subs, err := h.deps.CallerSubmissions(r.Context(), address, limit)
	if err != nil {
		writeError(w, WrapKind(op, classify(err), err))
		return
	}
	out := submissionsResponse{Address: address, Submissions: make([]submissionResponse, 0, len(subs))}
	for _, s := range subs {
		out.Submissions = append(out.Submissions, toSubmissionResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetSubmission handles GET /api/submissions/{id}.
func (h *ReadHandler) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "submission.get"
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	s, err := h.deps.Submission(r.Context(), id)
	if err != nil {
		writeError(w, WrapKind(op, classify(err), err))
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(s))
}

func toCallerResponse(c model.Caller) callerResponse {
	return callerResponse{
		ID:               c.ID.String(),
		Address:          c.Address,
		Name:             c.Name,
		CurrentLevel:     c.CurrentLevel,
		TargetScore:      c.TargetScore,
		TotalSubmissions: c.TotalSubmissions,
		CreatedAt:        c.CreatedAt,
		LastActiveAt:     c.LastActiveAt,
	}
}

func toSubmissionResponse(s model.Submission) submissionResponse {
	out := submissionResponse{
		ID:                s.ID.String(),
		CallerID:          s.CallerID.String(),
		TaskType:          s.TaskType,
		TaskPrompt:        s.TaskPrompt,
		ResponseText:      s.ResponseText,
		Status:            string(s.Status),
		OverallScore:      s.OverallScore,
		Subscores:         s.Subscores,
		CEFRLevel:         s.CEFRLevel,
		EvaluatorComments: s.EvaluatorComments,
		EvaluationError:   s.EvaluationError,
		CreatedAt:         s.CreatedAt,
		EvaluatedAt:       s.EvaluatedAt,
	}
	if json.Valid(s.Feedback) {
		out.Feedback = json.RawMessage(s.Feedback)
	}
	return out
}
