package engine

import (
	"slices"
	"strings"
)

// MergePolicy folds a secondary review into a regex-stage result. Escalation
// needs only disagreement; a downgrade needs a low-confidence regex result and
// a confident reviewer.
type MergePolicy struct {
	// A flagged result is only downgraded when its confidence is below this.
	DowngradeBelowConfidence float64
	// The reviewer must be at least this confident to downgrade.
	DowngradeMinReviewConfidence float64
	// Minimum score boost when the reviewer finds a threat the rules missed.
	EscalationFloor int
}

// DefaultMergePolicy returns the stock policy.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		DowngradeBelowConfidence:     0.75,
		DowngradeMinReviewConfidence: 0.7,
		EscalationFloor:              15,
	}
}

// Apply returns r adjusted by rv. An unusable review leaves r unchanged.
func (p MergePolicy) Apply(r AnalysisResult, rv ReviewResult, th Thresholds) AnalysisResult {
	if !rv.Reviewed || rv.Error != "" {
		return r
	}
	out := r
	out.Detections = slices.Clone(r.Detections)

	switch {
	case rv.Agrees:
		out.Confidence = max(out.Confidence, clamp01(rv.Confidence))

	case r.IsThreat:
		if r.Confidence >= p.DowngradeBelowConfidence || rv.Confidence < p.DowngradeMinReviewConfidence {
			return r
		}
		drop := abs(rv.RiskAdjustment)
		if drop == 0 {
			return r
		}
		out.RiskScore = max(0, r.RiskScore-drop)
		out.Confidence = clamp01(1 - rv.Confidence)

	default:
		boost := max(p.EscalationFloor, rv.RiskAdjustment)
		out.RiskScore = min(100, r.RiskScore+boost)
		category := strings.TrimSpace(rv.SuggestedCategory)
		if category == "" {
			category = "llm_review"
		}
		desc := "LLM review"
		if rv.Reasoning != "" {
			desc += ": " + rv.Reasoning
		}
		out.Detections = append(out.Detections, Detection{
			RuleID:      "llm_review",
			ThreatType:  category,
			RiskScore:   out.RiskScore,
			Description: desc,
		})
		out.ThreatType = category
		out.Confidence = max(out.Confidence, clamp01(rv.Confidence))
	}

	out.IsThreat = out.RiskScore >= ThreatThreshold
	out.Verdict = th.Decide(out.RiskScore)
	out.ReviewApplied = true
	return out
}

func clamp01(f float64) float64 {
	return min(1, max(0, f))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
