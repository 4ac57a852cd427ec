package selection

import (
	"fmt"
	"sort"
	"strings"
)

const maxAlternatives = 3

// Selector recommends a model per activity. It is immutable after New and
// safe for concurrent use.
type Selector struct {
	catalog     []CatalogEntry
	profiles    map[string]Profile
	weights     map[string]WeightOverride
	constraints map[string]Constraints
	overrides   map[string]string
	fallback    string
}

// New builds a Selector from the built-in catalog and profiles plus opts.
// Configuration is validated here so Recommend never fails on it.
func New(opts ...Option) (*Selector, error) {
	s := &Selector{
		catalog:     DefaultCatalog(),
		profiles:    DefaultProfiles(),
		weights:     make(map[string]WeightOverride),
		constraints: make(map[string]Constraints),
		overrides:   make(map[string]string),
		fallback:    FallbackModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := s.profiles[ActivityDefault]; !ok {
		s.profiles[ActivityDefault] = DefaultProfiles()[ActivityDefault]
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Selector) validate() error {
	seen := make(map[string]struct{}, len(s.catalog))
	for i, e := range s.catalog {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("%w: entry %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, e.ID)
		}
		seen[e.ID] = struct{}{}
		for _, t := range []int{e.QualityTier, e.CostTier, e.LatencyTier} {
			if t != 0 && (t < MinTier || t > MaxTier) {
				return fmt.Errorf("%w: %q tier %d out of range", ErrInvalidCatalog, e.ID, t)
			}
		}
	}
	for name, p := range s.profiles {
		if err := checkWeights(p.Weights.Quality, p.Weights.Cost, p.Weights.Latency); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
		if err := p.Constraints.check(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}
	for name, w := range s.weights {
		if err := checkWeights(deref(w.Quality), deref(w.Cost), deref(w.Latency)); err != nil {
			return fmt.Errorf("weights %q: %w", name, err)
		}
	}
	for name, c := range s.constraints {
		if err := c.check(); err != nil {
			return fmt.Errorf("constraints %q: %w", name, err)
		}
	}
	for name, id := range s.overrides {
		if id == "" {
			return fmt.Errorf("%w: empty override for %q", ErrUnknownModel, name)
		}
	}
	return nil
}

// Catalog returns a copy of the configured catalog.
func (s *Selector) Catalog() []CatalogEntry {
	return append([]CatalogEntry(nil), s.catalog...)
}

// Entry returns the configured catalog entry for id.
func (s *Selector) Entry(id string) (CatalogEntry, error) {
	e, ok := Lookup(s.catalog, id)
	if !ok {
		return CatalogEntry{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return e, nil
}

// Profile returns the effective profile for activity once operator
// overrides and req are applied.
func (s *Selector) Profile(activity string, req *Requirements) Profile {
	act := key(activity)
	p, ok := s.profiles[act]
	if !ok {
		p = s.profiles[ActivityDefault]
	}
	p = p.clone()

	if w, ok := s.lookupWeights(act); ok {
		p.Weights.Quality = orFloat(w.Quality, p.Weights.Quality)
		p.Weights.Cost = orFloat(w.Cost, p.Weights.Cost)
		p.Weights.Latency = orFloat(w.Latency, p.Weights.Latency)
	}
	if c, ok := s.lookupConstraints(act); ok {
		p.Constraints = c
	}

	if req != nil {
		p.Weights.Quality = orFloat(req.QualityPriority, p.Weights.Quality)
		p.Weights.Cost = orFloat(req.CostPriority, p.Weights.Cost)
		p.Weights.Latency = orFloat(req.LatencyPriority, p.Weights.Latency)
		p.Constraints.MinQualityTier = orInt(req.MinQualityTier, p.Constraints.MinQualityTier)
		p.Constraints.MaxCostTier = orInt(req.MaxCostTier, p.Constraints.MaxCostTier)
		p.Constraints.MaxLatencyTier = orInt(req.MaxLatencyTier, p.Constraints.MaxLatencyTier)
		p.Assumptions = append(p.Assumptions, req.Assumptions...)
		p.Notes = append(p.Notes, req.Notes...)
	}
	return p
}

// Recommend ranks catalog for activity. A nil or empty catalog means the
// configured one. The returned error is non-nil only when no model could be
// chosen; the Result then has an empty SelectedModel and explains why.
func (s *Selector) Recommend(activity string, req *Requirements, catalog []CatalogEntry) (Result, error) {
	if id, ok := s.overrides[key(activity)]; ok {
		return Result{
			Activity:      activity,
			SelectedModel: id,
			Alternatives:  []Alternative{},
			Rationale:     "model pinned by operator override",
			Assumptions:   []string{},
			Notes:         []string{"override applied: " + id},
			Overridden:    true,
		}, nil
	}

	if len(catalog) == 0 {
		catalog = s.catalog
	}
	if len(catalog) == 0 {
		return errorResult(activity, "model catalog is empty; configure a catalog or pass candidates"), ErrEmptyCatalog
	}
	if err := req.check(); err != nil {
		return errorResult(activity, err.Error()), err
	}

	p := s.Profile(activity, req)
	ranked := rank(catalog, p)
	res := Result{
		Activity:     activity,
		Alternatives: []Alternative{},
		Assumptions:  nonNil(p.Assumptions),
		Notes:        nonNil(p.Notes),
	}

	if len(ranked) == 0 {
		res.SelectedModel = s.fallback
		res.Rationale = "no model satisfied the constraints; using the default fallback to avoid blocking"
		res.Fallback = true
		return res, nil
	}

	best := ranked[0]
	bd := best.breakdown
	res.SelectedModel = best.id
	res.Score = best.score
	res.Breakdown = &bd
	res.Rationale = best.reason
	for _, alt := range ranked[1:min(len(ranked), 1+maxAlternatives)] {
		res.Alternatives = append(res.Alternatives, Alternative{Model: alt.id, Score: alt.score, Reason: alt.reason})
	}
	return res, nil
}

type candidate struct {
	id        string
	score     float64
	breakdown Breakdown
	reason    string
}

// rank scores the entries admitted by p's constraints, best first. Equal
// scores keep catalog order.
func rank(catalog []CatalogEntry, p Profile) []candidate {
	out := make([]candidate, 0, len(catalog))
	for _, e := range catalog {
		if !p.Constraints.admits(e) {
			continue
		}
		bd := Breakdown{
			Quality: float64(e.quality()),
			Cost:    float64(tierCeiling - e.cost()),
			Latency: float64(tierCeiling - e.latency()),
			Weights: p.Weights,
		}
		out = append(out, candidate{
			id:        e.ID,
			score:     p.Weights.Quality*bd.Quality + p.Weights.Cost*bd.Cost + p.Weights.Latency*bd.Latency,
			breakdown: bd,
			reason:    reason(e, bd, p.Label),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func reason(e CatalogEntry, bd Breakdown, label string) string {
	highlights := "overall balance"
	if len(e.Strengths) > 0 {
		highlights = strings.Join(e.Strengths, ", ")
	}
	return fmt.Sprintf("Good value for %s; quality %g/5, relative cost %g/5, latency %g/5; highlights: %s.",
		label, bd.Quality, bd.Cost, bd.Latency, highlights)
}

func errorResult(activity, msg string) Result {
	return Result{
		Activity:     activity,
		Alternatives: []Alternative{},
		Rationale:    msg,
		Assumptions:  []string{},
		Notes:        []string{},
	}
}

func (s *Selector) lookupWeights(act string) (WeightOverride, bool) {
	if w, ok := s.weights[act]; ok {
		return w, true
	}
	w, ok := s.weights[ActivityDefault]
	return w, ok
}

func (s *Selector) lookupConstraints(act string) (Constraints, bool) {
	if c, ok := s.constraints[act]; ok {
		return c, true
	}
	c, ok := s.constraints[ActivityDefault]
	return c, ok
}

func (r *Requirements) check() error {
	if r == nil {
		return nil
	}
	if err := checkWeights(deref(r.QualityPriority), deref(r.CostPriority), deref(r.LatencyPriority)); err != nil {
		return err
	}
	return Constraints{r.MinQualityTier, r.MaxCostTier, r.MaxLatencyTier}.check()
}

func (c Constraints) check() error {
	for _, t := range []*int{c.MinQualityTier, c.MaxCostTier, c.MaxLatencyTier} {
		if t != nil && (*t < MinTier || *t > MaxTier) {
			return fmt.Errorf("%w: tier %d outside %d..%d", ErrInvalidConstraint, *t, MinTier, MaxTier)
		}
	}
	return nil
}

func checkWeights(ws ...float64) error {
	for _, w := range ws {
		if w < 0 {
			return fmt.Errorf("%w: negative priority %g", ErrInvalidWeights, w)
		}
	}
	return nil
}

func key(activity string) string { return strings.ToLower(strings.TrimSpace(activity)) }

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func orFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func orInt(v *int, def *int) *int {
	if v == nil {
		return def
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
