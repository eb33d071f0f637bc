package rules

import (
	"math"
	"slices"
)

// ApplyOverride returns base with the non-nil fields of o laid over it.
// base is not modified. When the severity changes, the risk score is rescaled
// by the ratio of the two severity ceilings so the rule keeps its relative
// weight within the new band.
func ApplyOverride(base Rule, o Override) Rule {
	out := base
	out.Patterns = slices.Clone(base.Patterns)

	if o.Enabled != nil {
		out.Enabled = *o.Enabled
	}
	if o.Severity != nil && *o.Severity != base.Severity && o.Severity.Valid() {
		out.Severity = *o.Severity
		scaled := float64(base.RiskScore) * out.Severity.ceiling() / base.Severity.ceiling()
		out.RiskScore = min(100, int(math.Round(scaled)))
	}
	if o.Patterns != nil {
		out.Patterns = slices.Clone(o.Patterns)
	}
	return out
}

// EffectiveRules applies overrides keyed by rule id and drops disabled rules.
// The relative order of rs is preserved; the analyzer relies on it for
// tie-breaking.
func EffectiveRules(rs []Rule, overrides map[string]Override) []Rule {
	out := make([]Rule, 0, len(rs))
	for _, r := range rs {
		if o, ok := overrides[r.ID]; ok {
			r = ApplyOverride(r, o)
		}
		if !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out
}
