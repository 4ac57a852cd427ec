package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/detflow/internal/domain/selection"
)

// RecommendHandler exposes the model selector.
type RecommendHandler struct {
	deps Dependencies
}

// NewRecommendHandler creates a new recommendation handler.
func NewRecommendHandler(deps Dependencies) *RecommendHandler {
	return &RecommendHandler{deps: deps}
}

// HandleRecommend handles GET /api/recommendations. Query parameters map onto
// selection.Requirements; absent parameters leave the activity profile as is.
func (h *RecommendHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	const op = "recommendations.get"
	q := r.URL.Query()
	activity := q.Get("activity")
	if activity == "" {
		activity = selection.ActivityDefault
	}
	req, err := requirementsFromQuery(q)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Recommend(activity, req)
	if err != nil {
		writeError(w, WrapKind(op, classify(err), err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func requirementsFromQuery(q url.Values) (*selection.Requirements, error) {
	var (
		req selection.Requirements
		set bool
	)
	floats := []struct {
		name string
		dst  **float64
	}{
		{"quality_priority", &req.QualityPriority},
		{"cost_priority", &req.CostPriority},
		{"latency_priority", &req.LatencyPriority},
	}
	for _, f := range floats {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return nil, perr
		}
		*f.dst = &v
		set = true
	}
	ints := []struct {
		name string
		dst  **int
	}{
		{"min_quality_tier", &req.MinQualityTier},
		{"max_cost_tier", &req.MaxCostTier},
		{"max_latency_tier", &req.MaxLatencyTier},
	}
	for _, f := range ints {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, perr := strconv.Atoi(raw)
		if perr != nil {
			return nil, perr
		}
		*f.dst = &v
		set = true
	}
	if !set {
		return nil, nil
	}
	return &req, nil
}
