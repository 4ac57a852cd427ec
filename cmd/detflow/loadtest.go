package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/detflow/internal/loadtest"
	"github.com/okian/detflow/pkg/logger"
)

func newLoadtestCmd() *cobra.Command {
	cfg := loadtest.DefaultConfig()
	var verbose bool
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive simulated learners against a running server",
		Example: `  detflow loadtest --url http://localhost:9080 --callers 200 --workers 16
  detflow loadtest --duplicates 0.3 --output conversations.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWith(os.Stderr, "text"); err != nil {
				return err
			}
			level := "info"
			if verbose {
				level = "debug"
			}
			_ = logger.SetLevelString(level)
			_, err := loadtest.Run(cmd.Context(), cfg)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Callers, "callers", cfg.Callers, "number of simulated learners")
	f.IntVar(&cfg.AnswersPerCaller, "answers", cfg.AnswersPerCaller, "answers submitted per learner")
	f.Float64Var(&cfg.DuplicateRate, "duplicates", cfg.DuplicateRate, "probability of redelivering a message")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "learners talking at the same time")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "conversation generator seed")
	f.StringVar(&cfg.OutputFile, "output", "", "save the generated conversations to this file")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}
