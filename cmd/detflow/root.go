package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "detflow",
		Short:         "Messaging tutor for Duolingo English Test preparation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newServeCmd(),
		newRecommendCmd(),
		newClassifyCmd(),
		newLoadtestCmd(),
	)
	return root
}
