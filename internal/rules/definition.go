package rules

import (
	"math"
	"strings"
)

// File is the on-disk rule file: a list under a top-level "rules" key, each
// entry wrapping its definition in a "rule" object.
type File struct {
	Rules []Entry `yaml:"rules" json:"rules" validate:"required,min=1,dive"`
}

// Entry wraps a single definition.
type Entry struct {
	Rule Definition `yaml:"rule" json:"rule"`
}

// Definition is the authoring format of a rule.
type Definition struct {
	ID          string      `yaml:"id" json:"id" validate:"required" jsonschema:"minLength=1"`
	Name        string      `yaml:"name" json:"name" validate:"required" jsonschema:"minLength=1"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string      `yaml:"category" json:"category" validate:"required,oneof=prompt_injection data_exfiltration jailbreak content_safety custom" jsonschema:"enum=prompt_injection,enum=data_exfiltration,enum=jailbreak,enum=content_safety,enum=custom"`
	Severity    string      `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
	Confidence  *float64    `yaml:"confidence" json:"confidence" validate:"required,gte=0,lte=1" jsonschema:"minimum=0,maximum=1"`
	RiskScore   *int        `yaml:"risk_score,omitempty" json:"risk_score,omitempty" validate:"omitempty,gte=0,lte=100" jsonschema:"minimum=0,maximum=100"`
	Enabled     *bool       `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Tags        []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Detection   []Detection `yaml:"detection" json:"detection" validate:"required,min=1,dive"`
	Context     Context     `yaml:"context" json:"context"`
	Response    Response    `yaml:"response" json:"response"`
	Performance Performance `yaml:"performance" json:"performance"`
	Testing     Testing     `yaml:"testing" json:"testing"`
}

// Detection is one matcher of a rule. Only "pattern" detections are executed
// by the regex engine; the other types are carried for downstream engines.
type Detection struct {
	Type   string   `yaml:"type" json:"type" validate:"required,oneof=pattern semantic ml hybrid" jsonschema:"enum=pattern,enum=semantic,enum=ml,enum=hybrid"`
	Match  string   `yaml:"match" json:"match" validate:"required"`
	Flags  []string `yaml:"flags,omitempty" json:"flags,omitempty" validate:"dive,oneof=case_insensitive multiline dotall"`
	Weight *float64 `yaml:"weight,omitempty" json:"weight,omitempty" validate:"omitempty,gte=0,lte=1" jsonschema:"minimum=0,maximum=1"`
}

// Context narrows where a rule applies.
type Context struct {
	AppliesTo []string `yaml:"applies_to,omitempty" json:"applies_to,omitempty" validate:"dive,oneof=input output both"`
	Languages []string `yaml:"languages,omitempty" json:"languages,omitempty"`
}

// Response describes what a host should do on a match.
type Response struct {
	Action  string `yaml:"action" json:"action" validate:"required,oneof=block alert log sanitize escalate" jsonschema:"enum=block,enum=alert,enum=log,enum=sanitize,enum=escalate"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Performance carries the evaluation budget of a rule.
type Performance struct {
	MaxEvalTime string `yaml:"max_eval_time" json:"max_eval_time" validate:"required,evaltime" jsonschema:"pattern=^[0-9]+ms$"`
	Priority    int    `yaml:"priority" json:"priority" validate:"gte=1,lte=100" jsonschema:"minimum=1,maximum=100"`
}

// Testing holds the samples used by the self test.
type Testing struct {
	TruePositives           []string `yaml:"true_positives" json:"true_positives" validate:"required,min=1"`
	TrueNegatives           []string `yaml:"true_negatives" json:"true_negatives" validate:"required,min=1"`
	TargetFalsePositiveRate float64  `yaml:"target_false_positive_rate" json:"target_false_positive_rate" validate:"gte=0,lte=1" jsonschema:"minimum=0,maximum=1"`
}

// Expr returns the match string with its flags folded into an inline group.
func (det Detection) Expr() string {
	var flags strings.Builder
	for _, f := range det.Flags {
		switch f {
		case "case_insensitive":
			flags.WriteByte('i')
		case "multiline":
			flags.WriteByte('m')
		case "dotall":
			flags.WriteByte('s')
		}
	}
	if flags.Len() == 0 {
		return det.Match
	}
	return "(?" + flags.String() + ")" + det.Match
}

// Patterns returns the expressions of every pattern-type detection.
func (d Definition) Patterns() []string {
	var out []string
	for _, det := range d.Detection {
		if det.Type == "pattern" {
			out = append(out, det.Expr())
		}
	}
	return out
}

// ToRule converts a validated definition into the runtime form.
func (d Definition) ToRule(source Source) Rule {
	sev := Severity(d.Severity)
	var score int
	if d.Confidence != nil {
		score = int(math.Round(sev.ceiling() * *d.Confidence))
	}
	if d.RiskScore != nil {
		score = *d.RiskScore
	}
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		desc = d.Name
	}
	return Rule{
		ID:          d.ID,
		Name:        d.Name,
		Category:    Category(d.Category),
		Severity:    sev,
		Patterns:    d.Patterns(),
		RiskScore:   score,
		Enabled:     enabled,
		Source:      source,
		Description: desc,
	}
}
