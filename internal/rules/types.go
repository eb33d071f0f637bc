package rules

import (
	"fmt"
	"slices"
)

// Category classifies the threat a rule covers.
type Category string

const (
	CategoryPromptInjection  Category = "prompt_injection"
	CategoryDataExfiltration Category = "data_exfiltration"
	CategoryJailbreak        Category = "jailbreak"
	CategoryContentSafety    Category = "content_safety"
	CategoryCustom           Category = "custom"
)

var categories = []Category{
	CategoryPromptInjection,
	CategoryDataExfiltration,
	CategoryJailbreak,
	CategoryContentSafety,
	CategoryCustom,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return slices.Contains(categories, c) }

// Severity is the coarse impact level of a rule.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ceiling is the highest risk score a rule of this severity can carry.
func (s Severity) ceiling() float64 {
	switch s {
	case SeverityCritical:
		return 100
	case SeverityHigh:
		return 85
	case SeverityMedium:
		return 60
	default:
		return 35
	}
}

// DefaultRiskScore is the score given to a rule created without an explicit one.
func (s Severity) DefaultRiskScore() int { return int(s.ceiling()) }

// Source tells whether a rule ships with the product or was created by the operator.
type Source string

const (
	SourceCommunity Source = "community"
	SourceCustom    Source = "custom"
)

// Rule is the materialized form consumed by the analyzer.
type Rule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Patterns    []string `json:"patterns"`
	RiskScore   int      `json:"risk_score"`
	Enabled     bool     `json:"enabled"`
	Source      Source   `json:"source"`
	Description string   `json:"description"`
}

// Validate checks the enum fields and the score range. Pattern compilation is
// checked separately by CompilePatterns.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Category.Valid() {
		return fmt.Errorf("rule %s: invalid category %q", r.ID, r.Category)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if r.RiskScore < 0 || r.RiskScore > 100 {
		return fmt.Errorf("rule %s: risk_score %d out of range 0-100", r.ID, r.RiskScore)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("rule %s: at least one pattern is required", r.ID)
	}
	return nil
}

// Override shadows selected fields of a community rule. A nil field leaves
// the original value in place.
type Override struct {
	RuleID   string    `json:"rule_id"`
	Enabled  *bool     `json:"enabled,omitempty"`
	Severity *Severity `json:"severity,omitempty"`
	Patterns []string  `json:"patterns,omitempty"`
}

// IsZero reports whether the override changes nothing.
func (o Override) IsZero() bool {
	return o.Enabled == nil && o.Severity == nil && o.Patterns == nil
}
