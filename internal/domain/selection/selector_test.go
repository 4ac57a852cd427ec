package selection

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func mustNew(t *testing.T, opts ...Option) *Selector {
	t.Helper()
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	return s
}

func TestRecommendDefaults(t *testing.T) {
	Convey("Given the built-in catalog and profiles", t, func() {
		s := mustNew(t)

		Convey("When recommending for evaluation", func() {
			res, err := s.Recommend(ActivityEvaluation, nil, nil)

			Convey("Then the strongest affordable model wins", func() {
				So(err, ShouldBeNil)
				// gpt-4o: 5*5 + 2*3 + 2*4 = 39
				So(res.SelectedModel, ShouldEqual, "gpt-4o")
				So(res.Score, ShouldEqual, 39)
				So(res.Breakdown, ShouldNotBeNil)
				So(res.Breakdown.Quality, ShouldEqual, 5)
				So(res.Breakdown.Cost, ShouldEqual, 3)
				So(res.Breakdown.Latency, ShouldEqual, 4)
				So(res.Breakdown.Weights, ShouldResemble, Weights{Quality: 5, Cost: 2, Latency: 2})
				So(res.Outcome(), ShouldEqual, "ranked")
			})

			Convey("Then up to three alternatives follow in rank order", func() {
				So(len(res.Alternatives), ShouldEqual, 3)
				// turbo and sonnet tie at 35, mini and haiku at 33; catalog order breaks ties.
				So(res.Alternatives[0].Model, ShouldEqual, "gpt-4-turbo-preview")
				So(res.Alternatives[0].Score, ShouldEqual, 35)
				So(res.Alternatives[1].Model, ShouldEqual, "claude-3-5-sonnet")
				So(res.Alternatives[2].Model, ShouldEqual, "gpt-4o-mini")
				So(res.Alternatives[2].Reason, ShouldContainSubstring, "low cost, low latency")
			})

			Convey("Then the profile assumptions and notes are surfaced", func() {
				So(res.Assumptions, ShouldResemble, []string{"accuracy has high priority"})
				So(res.Notes, ShouldResemble, []string{"use stronger models for fair evaluation"})
				So(res.Rationale, ShouldContainSubstring, "DET answer evaluation")
			})
		})

		Convey("When the activity is unknown", func() {
			res, err := s.Recommend("translation", nil, nil)

			Convey("Then the default profile is used", func() {
				So(err, ShouldBeNil)
				So(res.Breakdown.Weights, ShouldResemble, Weights{Quality: 4, Cost: 3, Latency: 3})
				So(res.Rationale, ShouldContainSubstring, "general task")
			})
		})

		Convey("When called twice with the same inputs", func() {
			req := &Requirements{MaxCostTier: intp(3), Notes: []string{"n"}}
			a, _ := s.Recommend(ActivityChat, req, nil)
			b, _ := s.Recommend(ActivityChat, req, nil)

			Convey("Then the results are identical", func() {
				So(a, ShouldResemble, b)
			})

			Convey("Then built-in profiles are not mutated", func() {
				c, _ := s.Recommend(ActivityChat, nil, nil)
				So(c.Notes, ShouldBeEmpty)
			})
		})
	})
}

func TestRecommendQualityOnly(t *testing.T) {
	Convey("Given only quality priority is non-zero", t, func() {
		s := mustNew(t)
		req := &Requirements{QualityPriority: floatp(1), CostPriority: floatp(0), LatencyPriority: floatp(0)}

		for _, act := range []string{ActivityEvaluation, ActivityChat, ActivityStudyPlan, ActivitySummarization, "other"} {
			res, err := s.Recommend(act, req, nil)
			So(err, ShouldBeNil)
			// First catalog entry with the maximum quality tier.
			So(res.SelectedModel, ShouldEqual, "gpt-4o")
		}
	})
}

func TestRecommendConstraints(t *testing.T) {
	Convey("Given a cost ceiling", t, func() {
		s := mustNew(t)

		for k := MinTier; k <= MaxTier; k++ {
			res, err := s.Recommend(ActivityEvaluation, &Requirements{MaxCostTier: intp(k)}, nil)
			So(err, ShouldBeNil)

			cat := s.Catalog()
			sel, ok := Lookup(cat, res.SelectedModel)
			So(ok, ShouldBeTrue)
			So(sel.CostTier, ShouldBeLessThanOrEqualTo, k)
			for _, alt := range res.Alternatives {
				e, _ := Lookup(cat, alt.Model)
				So(e.CostTier, ShouldBeLessThanOrEqualTo, k)
			}
		}
	})

	Convey("Given constraints no candidate satisfies", t, func() {
		s := mustNew(t)
		res, err := s.Recommend(ActivityChat, &Requirements{MinQualityTier: intp(5), MaxCostTier: intp(1)}, nil)

		Convey("Then the fixed fallback model is returned", func() {
			So(err, ShouldBeNil)
			So(res.SelectedModel, ShouldEqual, FallbackModel)
			So(res.Score, ShouldEqual, 0)
			So(res.Fallback, ShouldBeTrue)
			So(res.Alternatives, ShouldBeEmpty)
			So(res.Outcome(), ShouldEqual, "fallback")
		})
	})

	Convey("Given an entry without declared tiers", t, func() {
		s := mustNew(t)
		cat := []CatalogEntry{{ID: "bare"}, {ID: "cheap", QualityTier: 2, CostTier: 1, LatencyTier: 1}}

		Convey("Then missing tiers read as the mid tier", func() {
			res, err := s.Recommend(ActivityDefault, &Requirements{MinQualityTier: intp(3)}, cat)
			So(err, ShouldBeNil)
			So(res.SelectedModel, ShouldEqual, "bare")
			So(res.Breakdown.Quality, ShouldEqual, 3)
			So(res.Rationale, ShouldContainSubstring, "overall balance")
		})
	})

	Convey("Given invalid request values", t, func() {
		s := mustNew(t)

		_, err := s.Recommend(ActivityChat, &Requirements{MaxCostTier: intp(9)}, nil)
		So(errors.Is(err, ErrInvalidConstraint), ShouldBeTrue)

		res, err := s.Recommend(ActivityChat, &Requirements{CostPriority: floatp(-1)}, nil)
		So(errors.Is(err, ErrInvalidWeights), ShouldBeTrue)
		So(res.SelectedModel, ShouldBeEmpty)
	})
}

func TestRecommendOverrides(t *testing.T) {
	Convey("Given an operator override for an activity", t, func() {
		s := mustNew(t,
			WithOverrides(map[string]string{"Evaluation": " my-finetune "}),
			WithCatalog(nil),
		)

		Convey("Then it wins regardless of catalog and requirements", func() {
			res, err := s.Recommend(ActivityEvaluation, &Requirements{MaxCostTier: intp(1)}, nil)
			So(err, ShouldBeNil)
			So(res.SelectedModel, ShouldEqual, "my-finetune")
			So(res.Score, ShouldEqual, 0.0)
			So(res.Breakdown, ShouldBeNil)
			So(res.Alternatives, ShouldBeEmpty)
			So(res.Notes, ShouldResemble, []string{"override applied: my-finetune"})
			So(res.Outcome(), ShouldEqual, "override")
		})

		Convey("Then other activities are not affected", func() {
			_, err := s.Recommend(ActivityChat, nil, nil)
			So(errors.Is(err, ErrEmptyCatalog), ShouldBeTrue)
		})
	})

	Convey("Given operator weight and constraint overrides", t, func() {
		s := mustNew(t,
			WithWeightOverrides(map[string]WeightOverride{
				ActivityDefault: {Quality: floatp(0)},
				ActivityChat:    {Cost: floatp(10)},
			}),
			WithConstraintOverrides(map[string]Constraints{
				ActivityDefault: {MaxLatencyTier: intp(2)},
			}),
		)

		Convey("Then activity weights override only the fields they set", func() {
			p := s.Profile(ActivityChat, nil)
			So(p.Weights, ShouldResemble, Weights{Quality: 3, Cost: 10, Latency: 4})
		})

		Convey("Then the default entry applies to activities without their own", func() {
			p := s.Profile(ActivityStudyPlan, nil)
			So(p.Weights, ShouldResemble, Weights{Quality: 0, Cost: 3, Latency: 2})
			So(*p.Constraints.MaxLatencyTier, ShouldEqual, 2)
		})

		Convey("Then requirements take final precedence", func() {
			p := s.Profile(ActivityChat, &Requirements{
				CostPriority:   floatp(1),
				MaxLatencyTier: intp(4),
				Assumptions:    []string{"from request"},
			})
			So(p.Weights.Cost, ShouldEqual, 1)
			So(*p.Constraints.MaxLatencyTier, ShouldEqual, 4)
			So(p.Assumptions, ShouldResemble, []string{"fast replies improve the experience", "from request"})
		})
	})
}

func TestRecommendEmptyCatalog(t *testing.T) {
	Convey("Given an empty catalog and no override", t, func() {
		s := mustNew(t, WithCatalog([]CatalogEntry{}))
		res, err := s.Recommend(ActivityEvaluation, nil, nil)

		Convey("Then an explicit error result is returned", func() {
			So(errors.Is(err, ErrEmptyCatalog), ShouldBeTrue)
			So(res.SelectedModel, ShouldBeEmpty)
			So(res.Outcome(), ShouldEqual, "error")
		})

		Convey("Then a caller-supplied catalog still works", func() {
			res, err := s.Recommend(ActivityEvaluation, nil, []CatalogEntry{{ID: "only", QualityTier: 4}})
			So(err, ShouldBeNil)
			So(res.SelectedModel, ShouldEqual, "only")
		})
	})
}

func TestNewValidation(t *testing.T) {
	Convey("Given malformed configuration", t, func() {
		_, err := New(WithCatalog([]CatalogEntry{{ID: "a"}, {ID: "a"}}))
		So(errors.Is(err, ErrInvalidCatalog), ShouldBeTrue)

		_, err = New(WithCatalog([]CatalogEntry{{ID: "a", CostTier: 7}}))
		So(errors.Is(err, ErrInvalidCatalog), ShouldBeTrue)

		_, err = New(WithWeightOverrides(map[string]WeightOverride{"chat": {Latency: floatp(-2)}}))
		So(errors.Is(err, ErrInvalidWeights), ShouldBeTrue)

		_, err = New(WithConstraintOverrides(map[string]Constraints{"chat": {MinQualityTier: intp(0)}}))
		So(errors.Is(err, ErrInvalidConstraint), ShouldBeTrue)

		_, err = New(WithOverrides(map[string]string{"chat": "  "}))
		So(errors.Is(err, ErrUnknownModel), ShouldBeTrue)
	})

	Convey("Given a lookup of an unknown id", t, func() {
		s := mustNew(t)
		_, err := s.Entry("nope")
		So(errors.Is(err, ErrUnknownModel), ShouldBeTrue)

		e, err := s.Entry("claude-3-haiku")
		So(err, ShouldBeNil)
		So(e.Provider, ShouldEqual, "anthropic")
	})
}
