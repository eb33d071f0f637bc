package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
)

func newSelfTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run every rule's true-positive and true-negative samples",
		Long: `Check that each rule matches the true_positives listed in its file and
matches none of its true_negatives. Rule files from --rules-dir are
included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := rules.NewLoader(a.logger)
			defs, err := loader.Definitions(rules.Bundled())
			if err != nil {
				return err
			}
			if a.rulesDir != "" {
				custom, err := loader.Definitions(os.DirFS(a.rulesDir))
				if err != nil {
					return err
				}
				defs = append(defs, custom...)
			}

			checked, failures := rules.SelfTest(defs)
			out := cmd.OutOrStdout()
			if a.jsonOut {
				if err := printJSON(out, map[string]any{
					"rules": len(defs), "samples": checked, "failures": failures,
				}); err != nil {
					return err
				}
			} else {
				for _, f := range failures {
					blockColor.Fprint(out, "FAIL ")
					want := "should not match"
					if f.Expected {
						want = "should match"
					}
					fmt.Fprintf(out, "%s %s: %q\n", f.RuleID, want, f.Sample)
				}
				c := allowColor
				if len(failures) > 0 {
					c = blockColor
				}
				c.Fprintf(out, "%d/%d samples passed", checked-len(failures), checked)
				fmt.Fprintf(out, " across %d rules\n", len(defs))
			}
			if len(failures) > 0 {
				return ErrThreatDetected
			}
			return nil
		},
	}
}
