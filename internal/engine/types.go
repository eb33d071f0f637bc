package engine

import (
	"fmt"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
)

// Verdict is the categorical decision derived from a risk score.
type Verdict int

const (
	VerdictAllow Verdict = iota + 1
	VerdictWarn
	VerdictReview
	VerdictBlock
)

// String returns the lowercase verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictWarn:
		return "warn"
	case VerdictReview:
		return "review"
	case VerdictBlock:
		return "block"
	default:
		return "unspecified"
	}
}

// MarshalText encodes the verdict by name.
func (v Verdict) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText parses a verdict name.
func (v *Verdict) UnmarshalText(b []byte) error {
	p, err := ParseVerdict(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// ParseVerdict maps a name back to its Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "allow":
		return VerdictAllow, nil
	case "warn":
		return VerdictWarn, nil
	case "review":
		return VerdictReview, nil
	case "block":
		return VerdictBlock, nil
	}
	return 0, fmt.Errorf("unknown verdict %q", s)
}

// ThreatThreshold is the fixed score at which a result counts as a threat.
// Callers may apply their own block threshold through Thresholds.
const ThreatThreshold = 70

// Detection is one rule that matched.
type Detection struct {
	RuleID      string         `json:"rule_id"`
	ThreatType  string         `json:"threat_type"`
	RiskScore   int            `json:"risk_score"`
	Severity    rules.Severity `json:"severity,omitempty"`
	Description string         `json:"description"`
}

// AnalysisResult is the outcome of scanning one piece of text.
type AnalysisResult struct {
	IsThreat       bool        `json:"is_threat"`
	RiskScore      int         `json:"risk_score"`
	ThreatType     string      `json:"threat_type"`
	Confidence     float64     `json:"confidence"`
	Detections     []Detection `json:"detections"`
	AnalysisTimeMs float64     `json:"analysis_time_ms"`
	Verdict        Verdict     `json:"verdict"`
	Cached         bool        `json:"cached"`
	ReviewApplied  bool        `json:"review_applied,omitempty"`
}

// ReviewResult is a secondary opinion on an AnalysisResult.
type ReviewResult struct {
	Reviewed          bool    `json:"reviewed"`
	Agrees            bool    `json:"agrees"`
	Confidence        float64 `json:"confidence"`
	RiskAdjustment    int     `json:"risk_adjustment"`
	SuggestedCategory string  `json:"suggested_category,omitempty"`
	Reasoning         string  `json:"reasoning,omitempty"`
	Error             string  `json:"error,omitempty"`
}
