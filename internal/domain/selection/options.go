package selection

import "strings"

// Option configures a Selector.
type Option func(*Selector)

// WithCatalog replaces the built-in catalog.
func WithCatalog(catalog []CatalogEntry) Option {
	return func(s *Selector) {
		s.catalog = append([]CatalogEntry(nil), catalog...)
	}
}

// WithProfile replaces or adds the profile of one activity.
func WithProfile(activity string, p Profile) Option {
	return func(s *Selector) {
		s.profiles[key(activity)] = p.clone()
	}
}

// WithWeightOverrides sets operator weight overrides keyed by activity or "default".
func WithWeightOverrides(w map[string]WeightOverride) Option {
	return func(s *Selector) {
		for k, v := range w {
			s.weights[key(k)] = v
		}
	}
}

// WithConstraintOverrides sets operator constraints keyed by activity or "default".
// A matching entry replaces the profile's constraints as a whole.
func WithConstraintOverrides(c map[string]Constraints) Option {
	return func(s *Selector) {
		for k, v := range c {
			s.constraints[key(k)] = v
		}
	}
}

// WithOverrides pins activities to a model id, bypassing ranking.
func WithOverrides(o map[string]string) Option {
	return func(s *Selector) {
		for k, v := range o {
			s.overrides[key(k)] = strings.TrimSpace(v)
		}
	}
}

// WithFallbackModel sets the model returned when no candidate survives constraints.
func WithFallbackModel(id string) Option {
	return func(s *Selector) {
		if id != "" {
			s.fallback = id
		}
	}
}
