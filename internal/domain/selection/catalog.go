package selection

// FallbackModel is returned when constraints eliminate every candidate.
const FallbackModel = "gpt-4-turbo-preview"

// DefaultCatalog returns the built-in model catalog. Order matters: it
// breaks ties between equal scores.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			ID: "gpt-4o-mini", Provider: "openai",
			QualityTier: 3, CostTier: 1, LatencyTier: 2,
			Strengths: []string{"low cost", "low latency", "simple tasks"},
		},
		{
			ID: "gpt-4o", Provider: "openai",
			QualityTier: 5, CostTier: 3, LatencyTier: 2,
			Strengths: []string{"high quality", "good latency", "general use"},
		},
		{
			ID: "gpt-4-turbo-preview", Provider: "openai",
			QualityTier: 5, CostTier: 4, LatencyTier: 3,
			Strengths: []string{"high quality", "long analysis"},
		},
		{
			ID: "claude-3-5-sonnet", Provider: "anthropic",
			QualityTier: 5, CostTier: 4, LatencyTier: 3,
			Strengths: []string{"high quality", "good writing"},
		},
		{
			ID: "claude-3-haiku", Provider: "anthropic",
			QualityTier: 3, CostTier: 1, LatencyTier: 2,
			Strengths: []string{"low cost", "fast replies"},
		},
	}
}

// DefaultProfiles returns the built-in activity profiles, keyed by activity.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		ActivityEvaluation: {
			Label:       "DET answer evaluation",
			Weights:     Weights{Quality: 5, Cost: 2, Latency: 2},
			Assumptions: []string{"accuracy has high priority"},
			Notes:       []string{"use stronger models for fair evaluation"},
		},
		ActivityStudyPlan: {
			Label:       "study plan creation",
			Weights:     Weights{Quality: 4, Cost: 3, Latency: 2},
			Assumptions: []string{"quality and coherence matter"},
		},
		ActivityChat: {
			Label:       "messaging conversation",
			Weights:     Weights{Quality: 3, Cost: 4, Latency: 4},
			Assumptions: []string{"fast replies improve the experience"},
		},
		ActivitySummarization: {
			Label:       "text summarization",
			Weights:     Weights{Quality: 3, Cost: 4, Latency: 3},
			Assumptions: []string{"summaries tolerate cheaper models"},
		},
		ActivityDefault: {
			Label:   "general task",
			Weights: Weights{Quality: 4, Cost: 3, Latency: 3},
		},
	}
}

// Lookup returns the catalog entry with the given id.
func Lookup(catalog []CatalogEntry, id string) (CatalogEntry, bool) {
	for _, e := range catalog {
		if e.ID == id {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
