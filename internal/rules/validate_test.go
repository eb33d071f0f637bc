package rules

import (
	"strings"
	"testing"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantErrs   []string // substrings expected among error strings
		wantWarns  int
		wantRules  int
		wantPassed bool
	}{
		{
			name:       "valid",
			doc:        "rules:" + ruleYAML("ok-1", `hello\s+world`),
			wantRules:  1,
			wantPassed: true,
		},
		{
			name:       "zero confidence",
			doc:        "rules:" + strings.Replace(ruleYAML("zero-1", "x"), "confidence: 0.9", "confidence: 0", 1),
			wantRules:  1,
			wantPassed: true,
		},
		{
			name:      "missing confidence",
			doc:       "rules:" + strings.Replace(ruleYAML("none-1", "x"), "      confidence: 0.9\n", "", 1),
			wantErrs:  []string{"confidence: is required"},
			wantRules: 1,
		},
		{
			name:      "bad regex",
			doc:       "rules:" + ruleYAML("bad", `([a-z`),
			wantErrs:  []string{"detection[0].match: invalid regex"},
			wantRules: 1,
		},
		{
			name:     "parse error",
			doc:      "rules: [",
			wantErrs: []string{"parse:"},
		},
		{
			name:     "unknown key",
			doc:      "rules:" + ruleYAML("x", "x") + "\nextra: true\n",
			wantErrs: []string{"parse:"},
		},
		{
			name:     "empty",
			doc:      "rules: []\n",
			wantErrs: []string{"at least one rule"},
		},
		{
			name:      "duplicate ids",
			doc:       "rules:" + ruleYAML("dup", "a") + ruleYAML("dup", "b"),
			wantErrs:  []string{"duplicate rule id"},
			wantRules: 2,
		},
		{
			name: "enum and budget violations",
			doc: `rules:
  - rule:
      id: enum-1
      name: bad enums
      category: spam
      severity: extreme
      confidence: 1.5
      detection:
        - type: regex
          match: x
          flags: [global]
      response:
        action: explode
      performance:
        max_eval_time: 5s
        priority: 0
      testing:
        true_positives: [a]
        true_negatives: [b]
        target_false_positive_rate: 0.5
`,
			wantErrs: []string{
				"category: must be one of",
				"severity: must be one of",
				"confidence: must be <= 1",
				"detection[0].type: must be one of",
				"detection[0].flags[0]: must be one of",
				"response.action: must be one of",
				`performance.max_eval_time: must look like "<N>ms"`,
				"performance.priority: must be >= 1",
			},
			wantWarns: 3,
			wantRules: 1,
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := v.ValidateFile([]byte(tt.doc))
			if rep.OK() != tt.wantPassed {
				t.Fatalf("OK() = %v, errors: %v", rep.OK(), rep.Errors)
			}
			if rep.Rules != tt.wantRules {
				t.Errorf("rules = %d, want %d", rep.Rules, tt.wantRules)
			}
			var all []string
			for _, e := range rep.Errors {
				all = append(all, e.String())
			}
			joined := strings.Join(all, "\n")
			for _, want := range tt.wantErrs {
				if !strings.Contains(joined, want) {
					t.Errorf("missing error %q in:\n%s", want, joined)
				}
			}
			if len(rep.Warnings) != tt.wantWarns {
				t.Errorf("warnings = %v, want %d", rep.Warnings, tt.wantWarns)
			}
		})
	}
}

func TestDetectionExpr(t *testing.T) {
	d := Detection{Match: "abc", Flags: []string{"case_insensitive", "dotall"}}
	if got := d.Expr(); got != "(?is)abc" {
		t.Fatalf("Expr() = %q", got)
	}
	if got := (Detection{Match: "abc"}).Expr(); got != "abc" {
		t.Fatalf("Expr() = %q", got)
	}
}
