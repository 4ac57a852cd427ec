// Package selection picks a language-model backend per activity by weighing
// quality, cost and latency tiers under operator constraints.
package selection

// Activities with built-in profiles.
const (
	ActivityEvaluation    = "evaluation"
	ActivityStudyPlan     = "study_plan"
	ActivityChat          = "chat"
	ActivitySummarization = "summarization"
	ActivityDefault       = "default"
)

// Tier scale bounds. Cost and latency goodness is tierCeiling minus tier.
const (
	MinTier     = 1
	MaxTier     = 5
	neutralTier = 3
	tierCeiling = 6
)

// CatalogEntry describes one selectable model. A zero tier means the tier
// was not declared and is read as the neutral mid tier.
type CatalogEntry struct {
	ID          string   `json:"id" koanf:"id"`
	Provider    string   `json:"provider" koanf:"provider"`
	QualityTier int      `json:"quality_tier" koanf:"quality_tier"`
	CostTier    int      `json:"cost_tier" koanf:"cost_tier"`
	LatencyTier int      `json:"latency_tier" koanf:"latency_tier"`
	Strengths   []string `json:"strengths" koanf:"strengths"`
}

func (e CatalogEntry) quality() int { return tierOrNeutral(e.QualityTier) }
func (e CatalogEntry) cost() int    { return tierOrNeutral(e.CostTier) }
func (e CatalogEntry) latency() int { return tierOrNeutral(e.LatencyTier) }

func tierOrNeutral(t int) int {
	if t == 0 {
		return neutralTier
	}
	return t
}

// Weights are the per-criterion priorities of a profile.
type Weights struct {
	Quality float64 `json:"quality_priority"`
	Cost    float64 `json:"cost_priority"`
	Latency float64 `json:"latency_priority"`
}

// WeightOverride replaces only the weights it sets.
type WeightOverride struct {
	Quality *float64 `json:"quality_priority,omitempty" koanf:"quality_priority"`
	Cost    *float64 `json:"cost_priority,omitempty" koanf:"cost_priority"`
	Latency *float64 `json:"latency_priority,omitempty" koanf:"latency_priority"`
}

// Constraints are hard filters; nil means no filter on that criterion.
type Constraints struct {
	MinQualityTier *int `json:"min_quality_tier,omitempty" koanf:"min_quality_tier"`
	MaxCostTier    *int `json:"max_cost_tier,omitempty" koanf:"max_cost_tier"`
	MaxLatencyTier *int `json:"max_latency_tier,omitempty" koanf:"max_latency_tier"`
}

func (c Constraints) admits(e CatalogEntry) bool {
	if c.MinQualityTier != nil && e.quality() < *c.MinQualityTier {
		return false
	}
	if c.MaxCostTier != nil && e.cost() > *c.MaxCostTier {
		return false
	}
	if c.MaxLatencyTier != nil && e.latency() > *c.MaxLatencyTier {
		return false
	}
	return true
}

// Profile is the effective scoring policy for one activity.
type Profile struct {
	Label       string      `json:"label"`
	Weights     Weights     `json:"weights"`
	Constraints Constraints `json:"constraints"`
	Assumptions []string    `json:"assumptions"`
	Notes       []string    `json:"notes"`
}

func (p Profile) clone() Profile {
	p.Assumptions = append([]string(nil), p.Assumptions...)
	p.Notes = append([]string(nil), p.Notes...)
	return p
}

// Requirements are per-call adjustments. Set fields win over the profile
// and operator overrides.
type Requirements struct {
	QualityPriority *float64 `json:"quality_priority,omitempty"`
	CostPriority    *float64 `json:"cost_priority,omitempty"`
	LatencyPriority *float64 `json:"latency_priority,omitempty"`
	MinQualityTier  *int     `json:"min_quality_tier,omitempty"`
	MaxCostTier     *int     `json:"max_cost_tier,omitempty"`
	MaxLatencyTier  *int     `json:"max_latency_tier,omitempty"`
	Assumptions     []string `json:"assumptions,omitempty"`
	Notes           []string `json:"notes,omitempty"`
}

// Breakdown explains how a score was composed.
type Breakdown struct {
	Quality float64 `json:"quality"`
	Cost    float64 `json:"cost"`
	Latency float64 `json:"latency"`
	Weights Weights `json:"weights"`
}

// Alternative is a runner-up candidate.
type Alternative struct {
	Model  string  `json:"model"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Result is the outcome of a recommendation. SelectedModel is empty only
// when no recommendation could be made.
type Result struct {
	Activity      string        `json:"activity"`
	SelectedModel string        `json:"selected_model,omitempty"`
	Score         float64       `json:"score"`
	Breakdown     *Breakdown    `json:"score_breakdown,omitempty"`
	Alternatives  []Alternative `json:"alternatives"`
	Rationale     string        `json:"rationale"`
	Assumptions   []string      `json:"assumptions"`
	Notes         []string      `json:"notes"`
	Overridden    bool          `json:"overridden"`
	Fallback      bool          `json:"fallback"`
}

// Outcome classifies how the result was reached.
func (r Result) Outcome() string {
	switch {
	case r.SelectedModel == "":
		return "error"
	case r.Overridden:
		return "override"
	case r.Fallback:
		return "fallback"
	default:
		return "ranked"
	}
}
