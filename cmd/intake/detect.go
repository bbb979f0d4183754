package main

import (
	"strings"

	"github.com/spf13/cobra"

	"symptosafe/internal/safety"
)

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <text>",
		Short: "Screen a symptom description for emergency keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := safety.NewDetector(a.registry).Detect(strings.Join(args, " "))
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
