package rules

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var evalTimeRe = regexp.MustCompile(`^[0-9]+ms$`)

// Issue is a single validation finding.
type Issue struct {
	RuleID  string `json:"rule_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.RuleID != "" {
		b.WriteString(i.RuleID)
		b.WriteString(": ")
	}
	if i.Field != "" {
		b.WriteString(i.Field)
		b.WriteString(": ")
	}
	b.WriteString(i.Message)
	return b.String()
}

// Report is the outcome of validating one rule file.
type Report struct {
	Rules    int     `json:"rules"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// OK reports whether the file has no errors. Warnings do not fail a file.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Validator checks rule definitions against the authoring format.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator with the rule-specific checks registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("evaltime", func(fl validator.FieldLevel) bool {
		return evalTimeRe.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// ValidateDefinition returns the errors and warnings for a single definition.
func (val *Validator) ValidateDefinition(d Definition) (errs, warns []Issue) {
	if err := val.v.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, Issue{
					RuleID:  d.ID,
					Field:   trimNamespace(fe.Namespace()),
					Message: describeFieldError(fe),
				})
			}
		} else {
			errs = append(errs, Issue{RuleID: d.ID, Message: err.Error()})
		}
	}

	for i, det := range d.Detection {
		if det.Type != "pattern" {
			continue
		}
		if _, err := regexp.Compile(det.Expr()); err != nil {
			errs = append(errs, Issue{
				RuleID:  d.ID,
				Field:   fmt.Sprintf("detection[%d].match", i),
				Message: fmt.Sprintf("invalid regex: %v", err),
			})
		}
	}

	if n := len(d.Testing.TruePositives); n > 0 && n < 3 {
		warns = append(warns, Issue{RuleID: d.ID, Field: "testing.true_positives", Message: fmt.Sprintf("%d samples, at least 3 recommended", n)})
	}
	if n := len(d.Testing.TrueNegatives); n > 0 && n < 3 {
		warns = append(warns, Issue{RuleID: d.ID, Field: "testing.true_negatives", Message: fmt.Sprintf("%d samples, at least 3 recommended", n)})
	}
	if d.Testing.TargetFalsePositiveRate > 0.01 {
		warns = append(warns, Issue{RuleID: d.ID, Field: "testing.target_false_positive_rate", Message: "above the recommended 0.01"})
	}
	return errs, warns
}

// ValidateFile parses and validates a whole rule file. Unknown keys are errors.
func (val *Validator) ValidateFile(data []byte) Report {
	var rep Report
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		rep.Errors = append(rep.Errors, Issue{Message: fmt.Sprintf("parse: %v", err)})
		return rep
	}
	if len(f.Rules) == 0 {
		rep.Errors = append(rep.Errors, Issue{Field: "rules", Message: "at least one rule is required"})
		return rep
	}

	seen := make(map[string]bool, len(f.Rules))
	for _, e := range f.Rules {
		rep.Rules++
		errs, warns := val.ValidateDefinition(e.Rule)
		if e.Rule.ID != "" && seen[e.Rule.ID] {
			errs = append(errs, Issue{RuleID: e.Rule.ID, Field: "id", Message: "duplicate rule id"})
		}
		seen[e.Rule.ID] = true
		rep.Errors = append(rep.Errors, errs...)
		rep.Warnings = append(rep.Warnings, warns...)
	}
	return rep
}

func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s item(s)", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "evaltime":
		return `must look like "<N>ms"`
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
