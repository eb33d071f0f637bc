package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/review"
)

func newScanCmd(a *app) *cobra.Command {
	var withReview, failOnThreat bool

	cmd := &cobra.Command{
		Use:   "scan [text|-]",
		Short: "Scan text for prompt injection, jailbreaks and data exfiltration",
		Long: `Scan a prompt or model response against the rule set.

  securevector scan "ignore previous instructions"
  cat response.txt | securevector scan -

With --review the result is sent to the configured review model
(SV_REVIEW_ENDPOINT) for a second opinion.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			var reviewer engine.Reviewer
			if withReview {
				if !a.cfg.Review.Enabled {
					return fmt.Errorf("--review requires SV_REVIEW_ENABLED=true and SV_REVIEW_ENDPOINT")
				}
				reviewer = review.NewClient(a.cfg.Review, a.logger)
			}
			sc, err := a.scanner(cmd.Context(), reviewer)
			if err != nil {
				return err
			}
			res, err := sc.Scan(cmd.Context(), text, engine.ScanOptions{Review: withReview})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				printScan(cmd, res)
			}
			if failOnThreat && res.Analysis.Verdict == engine.VerdictBlock {
				return ErrThreatDetected
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withReview, "review", false, "Ask the review model for a second opinion")
	cmd.Flags().BoolVar(&failOnThreat, "fail-on-threat", false, "Exit non-zero when the verdict is block")
	return cmd
}

func printScan(cmd *cobra.Command, res engine.ScanResult) {
	out := cmd.OutOrStdout()
	r := res.Analysis

	verdictColor(r.Verdict).Fprintf(out, "%s", r.Verdict)
	fmt.Fprintf(out, "  risk=%d confidence=%.2f", r.RiskScore, r.Confidence)
	if r.ThreatType != "" {
		fmt.Fprintf(out, " type=%s", r.ThreatType)
	}
	mutedColor.Fprintf(out, "  (%.2fms)\n", r.AnalysisTimeMs)

	if len(r.Detections) > 0 {
		fmt.Fprintln(out)
		table := newTable(out, "Rule", "Type", "Severity", "Score", "Description")
		for _, d := range r.Detections {
			table.Append([]string{d.RuleID, d.ThreatType, string(d.Severity), strconv.Itoa(d.RiskScore), d.Description})
		}
		table.Render()
	}

	if rv := res.Review; rv != nil {
		fmt.Fprintln(out)
		if rv.Error != "" {
			warnColor.Fprintf(out, "review failed: %s\n", rv.Error)
			return
		}
		fmt.Fprintf(out, "review: agrees=%t confidence=%.2f adjustment=%+d", rv.Agrees, rv.Confidence, rv.RiskAdjustment)
		if r.ReviewApplied {
			fmt.Fprint(out, " (applied)")
		}
		fmt.Fprintln(out)
		if rv.Reasoning != "" {
			mutedColor.Fprintln(out, rv.Reasoning)
		}
	}
}
