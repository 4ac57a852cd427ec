package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/detflow/internal/domain/intent"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Print the intent of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), intent.Classify(strings.Join(args, " ")))
			return err
		},
	}
}
