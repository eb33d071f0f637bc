package rules

import "regexp"

// SampleFailure is a testing sample that did not behave as declared.
type SampleFailure struct {
	RuleID string `json:"rule_id"`
	Sample string `json:"sample"`
	// Expected is true for a true positive that did not match and false for
	// a true negative that did.
	Expected bool `json:"expected"`
}

// SelfTest runs each definition's testing samples against its own patterns
// with the flags the analyzer uses. It returns the number of samples checked
// and every failure.
func SelfTest(defs []Definition) (checked int, failures []SampleFailure) {
	for _, d := range defs {
		var res []*regexp.Regexp
		for _, p := range d.Patterns() {
			re, err := regexp.Compile("(?im)" + p)
			if err != nil {
				continue
			}
			res = append(res, re)
		}
		matches := func(s string) bool {
			for _, re := range res {
				if re.MatchString(s) {
					return true
				}
			}
			return false
		}
		for _, s := range d.Testing.TruePositives {
			checked++
			if !matches(s) {
				failures = append(failures, SampleFailure{RuleID: d.ID, Sample: s, Expected: true})
			}
		}
		for _, s := range d.Testing.TrueNegatives {
			checked++
			if matches(s) {
				failures = append(failures, SampleFailure{RuleID: d.ID, Sample: s, Expected: false})
			}
		}
	}
	return checked, failures
}
