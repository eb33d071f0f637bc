// Package patterngen turns a plain-language description of a threat into
// candidate regex patterns. It is a heuristic authoring aid; every result
// needs human review before it becomes a rule.
package patterngen

import (
	"regexp"
	"strings"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
)

// GeneratedPattern is one candidate pattern.
type GeneratedPattern struct {
	Pattern     string         `json:"pattern"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Category    rules.Category `json:"category"`
}

const (
	baseConfidence     = 0.6
	longKeywordBonus   = 0.1
	multiKeywordBonus  = 0.1
	longKeywordLen     = 8
	literalConfidence  = 0.5
	containsConfidence = 0.4
)

var (
	quotedRe   = regexp.MustCompile(`"([^"]+)"|(?:^|[\s(\[])'([^']+)'(?:$|[\s.,;:!?)\]])|“([^”]+)”`)
	containsRe = regexp.MustCompile(`(?i)\b(?:containing|contains|contain|mentions|mentioning|mention|includes|including|with the (?:word|phrase))\s+(?:the\s+)?(?:word\s+|phrase\s+)?([\p{L}\p{N}][\p{L}\p{N} _-]*)`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Generate returns candidate patterns for description. It returns an empty
// slice, not an error, when nothing useful can be derived.
func Generate(description string) []GeneratedPattern {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return []GeneratedPattern{}
	}
	if out := fromKeywords(desc); len(out) > 0 {
		return out
	}
	if out := fromQuotedLiterals(desc); len(out) > 0 {
		return out
	}
	if out := fromContains(desc); len(out) > 0 {
		return out
	}
	return []GeneratedPattern{}
}

func fromKeywords(desc string) []GeneratedPattern {
	lower := strings.ToLower(desc)

	type hit struct {
		entry   *entry
		longest int
	}
	var hits []hit
	total := 0
	for i := range table {
		e := &table[i]
		longest := 0
		for j, kw := range e.keywords {
			if e.matchers[j].MatchString(lower) {
				total++
				longest = max(longest, len(kw))
			}
		}
		if longest > 0 {
			hits = append(hits, hit{entry: e, longest: longest})
		}
	}

	seen := make(map[string]bool)
	var out []GeneratedPattern
	for _, h := range hits {
		conf := baseConfidence
		if h.longest >= longKeywordLen {
			conf += longKeywordBonus
		}
		if total > 1 {
			conf += multiKeywordBonus
		}
		conf = min(1.0, conf)
		for _, p := range h.entry.patterns {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, GeneratedPattern{
				Pattern:     p,
				Description: h.entry.description,
				Confidence:  conf,
				Category:    h.entry.category,
			})
		}
	}
	return out
}

func fromQuotedLiterals(desc string) []GeneratedPattern {
	var lits []string
	seen := make(map[string]bool)
	for _, m := range quotedRe.FindAllStringSubmatch(desc, -1) {
		lit := strings.TrimSpace(m[1] + m[2] + m[3])
		key := strings.ToLower(lit)
		if lit == "" || seen[key] {
			continue
		}
		seen[key] = true
		lits = append(lits, literalPattern(lit))
	}
	if len(lits) == 0 {
		return nil
	}
	return []GeneratedPattern{{
		Pattern:     "(?:" + strings.Join(lits, "|") + ")",
		Description: "Matches the quoted phrases",
		Confidence:  literalConfidence,
		Category:    rules.CategoryCustom,
	}}
}

func fromContains(desc string) []GeneratedPattern {
	m := containsRe.FindStringSubmatch(desc)
	if m == nil {
		return nil
	}
	phrase := strings.Trim(strings.TrimSpace(m[1]), "_-")
	if len(phrase) < 2 {
		return nil
	}
	return []GeneratedPattern{{
		Pattern:     `\b` + literalPattern(phrase) + `\b`,
		Description: "Matches text containing \"" + phrase + "\"",
		Confidence:  containsConfidence,
		Category:    rules.CategoryCustom,
	}}
}

// literalPattern escapes s and lets any run of whitespace match.
func literalPattern(s string) string {
	words := spaceRe.Split(strings.TrimSpace(s), -1)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}
