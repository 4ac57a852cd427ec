package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/okian/detflow/internal/config"
	"github.com/okian/detflow/internal/domain/selection"
)

func newRecommendCmd() *cobra.Command {
	var (
		activity                        string
		minQuality, maxCost, maxLatency int
		quality, cost, latency          float64
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend a model for an activity",
		Example: `  detflow recommend --activity evaluation
  detflow recommend --activity chat --max-cost 2 --latency 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			sel, err := selection.New(cfg.SelectorOptions()...)
			if err != nil {
				return err
			}

			var req selection.Requirements
			set := false
			flags := cmd.Flags()
			for name, dst := range map[string]**int{"min-quality": &req.MinQualityTier, "max-cost": &req.MaxCostTier, "max-latency": &req.MaxLatencyTier} {
				if flags.Changed(name) {
					v, _ := flags.GetInt(name)
					*dst = &v
					set = true
				}
			}
			for name, dst := range map[string]**float64{"quality": &req.QualityPriority, "cost": &req.CostPriority, "latency": &req.LatencyPriority} {
				if flags.Changed(name) {
					v, _ := flags.GetFloat64(name)
					*dst = &v
					set = true
				}
			}
			var reqp *selection.Requirements
			if set {
				reqp = &req
			}

			res, err := sel.Recommend(activity, reqp, nil)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&activity, "activity", "a", selection.ActivityDefault, "activity to recommend for")
	f.IntVar(&minQuality, "min-quality", 0, "minimum quality tier (1-5)")
	f.IntVar(&maxCost, "max-cost", 0, "maximum cost tier (1-5)")
	f.IntVar(&maxLatency, "max-latency", 0, "maximum latency tier (1-5)")
	f.Float64Var(&quality, "quality", 0, "quality priority")
	f.Float64Var(&cost, "cost", 0, "cost priority")
	f.Float64Var(&latency, "latency", 0, "latency priority")
	return cmd
}
