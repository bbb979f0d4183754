package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"symptosafe/internal/agent"
	"symptosafe/internal/analysis"
	"symptosafe/internal/consultation"
	"symptosafe/internal/safety"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		lang    string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <text>",
		Short: "Run the emergency screen and, if clear, a symptom analysis",
		Long: `analyze treats the arguments as a single user message. An emergency match
is reported without any analysis. --offline skips the reasoning service and
uses the local keyword classifier.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			out := consultation.TurnResponse{
				Emergency: safety.NewDetector(a.registry).Detect(text),
			}
			if out.Emergency.IsEmergency {
				return printJSON(cmd.OutOrStdout(), out)
			}

			msgs := []analysis.Message{{Role: analysis.RoleUser, Content: text}}

			var reasoner analysis.Reasoner
			if !offline {
				r, err := agent.NewReasoner(cmd.Context(), a.cfg)
				switch {
				case errors.Is(err, analysis.ErrMissingCredential):
					a.logger.Warn("no reasoning credential, using the local classifier",
						zap.String("provider", a.cfg.ReasonerProvider))
				case err != nil:
					return err
				default:
					reasoner = r
				}
			}

			analyzer := analysis.NewAnalyzer(reasoner, a.cfg.ReasonerTimeout, a.logger)
			var res analysis.Result
			if offline {
				res = analyzer.Fallback(msgs)
			} else {
				res = analyzer.Analyze(cmd.Context(), msgs, analysis.Options{Language: lang})
			}
			out.Analysis = &res
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "en", "Response language (BCP 47, e.g. hi, es)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the local classifier only")
	return cmd
}
