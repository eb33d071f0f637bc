package engine

import (
	"fmt"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
)

// Thresholds converts a risk score into a Verdict.
type Thresholds struct {
	Block  int // score >= Block → BLOCK (default 85)
	Review int // score >= Review → REVIEW (default 70)
	Warn   int // score >= Warn → WARN (default 40)
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Block: 85, Review: 70, Warn: 40}
}

// Validate checks that the thresholds are ordered and within 0-100.
func (t Thresholds) Validate() error {
	if t.Warn < 0 || t.Block > 100 {
		return fmt.Errorf("thresholds must lie within 0-100: %+v", t)
	}
	if !(t.Warn <= t.Review && t.Review <= t.Block) {
		return fmt.Errorf("thresholds must satisfy warn <= review <= block: %+v", t)
	}
	return nil
}

// Decide applies the thresholds, highest first.
func (t Thresholds) Decide(score int) Verdict {
	switch {
	case score >= t.Block:
		return VerdictBlock
	case score >= t.Review:
		return VerdictReview
	case score >= t.Warn && score > 0:
		return VerdictWarn
	default:
		return VerdictAllow
	}
}

// aggregate derives the summary fields of a result from its detections.
// The maximum score wins and ties go to the earliest detection; scores are
// never summed.
func aggregate(dets []Detection) (score int, threatType string, confidence float64) {
	if len(dets) == 0 {
		return 0, "", 0
	}
	best := 0
	for i, d := range dets[1:] {
		if d.RiskScore > dets[best].RiskScore {
			best = i + 1
		}
	}
	confidence = 0.4 + severityWeight(dets[best].Severity) + 0.15*float64(len(dets)-1)
	return dets[best].RiskScore, dets[best].ThreatType, min(confidence, 1.0)
}

func severityWeight(s rules.Severity) float64 {
	switch s {
	case rules.SeverityCritical:
		return 0.4
	case rules.SeverityHigh:
		return 0.3
	case rules.SeverityMedium:
		return 0.2
	default:
		return 0.1
	}
}
