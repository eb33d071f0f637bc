package engine

import (
	"regexp"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/metrics"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long an analysis result is reused for identical text.
const DefaultCacheTTL = 300 * time.Second

// AnalyzerConfig configures an Analyzer.
type AnalyzerConfig struct {
	CacheTTL   time.Duration // 0 = DefaultCacheTTL, negative disables the cache
	CacheSize  int           // 0 = DefaultCacheSize
	Thresholds Thresholds    // zero value = DefaultThresholds()
}

type compiledRule struct {
	rule     rules.Rule
	patterns []*regexp.Regexp
}

type ruleSet struct {
	gen      uint64
	rules    []compiledRule
	patterns int
}

// Analyzer matches text against the enabled rule set. It is safe for
// concurrent use; SetRules swaps the rule set atomically.
type Analyzer struct {
	set        atomic.Pointer[ruleSet]
	gen        atomic.Uint64
	cache      *ResultCache
	thresholds Thresholds
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewAnalyzer creates an Analyzer with an empty rule set. m may be nil.
func NewAnalyzer(cfg AnalyzerConfig, logger *zap.Logger, m *metrics.Metrics) *Analyzer {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	th := cfg.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	a := &Analyzer{
		cache:      NewResultCache(cfg.CacheSize, ttl),
		thresholds: th,
		logger:     logger,
		metrics:    m,
	}
	a.set.Store(&ruleSet{})
	return a
}

// Thresholds returns the verdict thresholds in use.
func (a *Analyzer) Thresholds() Thresholds { return a.thresholds }

// SetRules compiles rs and makes it the active rule set, in the given order.
// Disabled rules are dropped. A pattern that fails to compile is logged and
// skipped without affecting the rest of its rule. It returns the number of
// rules with at least one usable pattern.
func (a *Analyzer) SetRules(rs []rules.Rule) int {
	set := &ruleSet{gen: a.gen.Add(1), rules: make([]compiledRule, 0, len(rs))}
	for _, r := range rs {
		if !r.Enabled {
			continue
		}
		cr := compiledRule{rule: r, patterns: make([]*regexp.Regexp, 0, len(r.Patterns))}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?im)" + p)
			if err != nil {
				a.logger.Warn("pattern skipped",
					zap.String("rule_id", r.ID),
					zap.String("pattern", p),
					zap.Error(err),
				)
				continue
			}
			cr.patterns = append(cr.patterns, re)
		}
		if len(cr.patterns) == 0 {
			continue
		}
		set.patterns += len(cr.patterns)
		set.rules = append(set.rules, cr)
	}
	a.set.Store(set)
	a.cache.Purge()
	a.metrics.SetActiveRules(len(set.rules))
	a.logger.Info("rule set loaded",
		zap.Int("rules", len(set.rules)),
		zap.Int("patterns", set.patterns),
		zap.Uint64("generation", set.gen),
	)
	return len(set.rules)
}

// RuleCount returns the number of active rules.
func (a *Analyzer) RuleCount() int {
	return len(a.set.Load().rules)
}

// Analyze scans text against every active rule. Empty or whitespace-only
// text yields a clean result without touching rules or cache.
func (a *Analyzer) Analyze(text string) AnalysisResult {
	start := time.Now()

	normalized := Normalize(text)
	if normalized == "" {
		return AnalysisResult{Detections: []Detection{}, Verdict: VerdictAllow}
	}

	set := a.set.Load()
	lookup := a.cache.Get(normalized, set.gen)
	switch {
	case lookup.Hit:
		a.metrics.ObserveCache("hit")
		r := lookup.Result
		r.Detections = slices.Clone(r.Detections)
		r.Cached = true
		r.AnalysisTimeMs = elapsedMs(start)
		return r
	case lookup.Expired:
		a.metrics.ObserveCache("expired")
	default:
		a.metrics.ObserveCache("miss")
	}

	dets := make([]Detection, 0, 2)
	for _, cr := range set.rules {
		for _, re := range cr.patterns {
			if re.MatchString(text) {
				dets = append(dets, Detection{
					RuleID:      cr.rule.ID,
					ThreatType:  string(cr.rule.Category),
					RiskScore:   cr.rule.RiskScore,
					Severity:    cr.rule.Severity,
					Description: cr.rule.Description,
				})
				break
			}
		}
	}

	score, threatType, confidence := aggregate(dets)
	result := AnalysisResult{
		IsThreat:   score >= ThreatThreshold,
		RiskScore:  score,
		ThreatType: threatType,
		Confidence: confidence,
		Detections: dets,
		Verdict:    a.thresholds.Decide(score),
	}
	elapsed := time.Since(start)
	result.AnalysisTimeMs = float64(elapsed) / float64(time.Millisecond)

	stored := result
	stored.Detections = slices.Clone(dets)
	a.cache.Set(normalized, set.gen, stored)
	a.metrics.ObserveAnalysis(result.IsThreat, elapsed)

	if result.IsThreat {
		a.logger.Debug("threat detected",
			zap.String("threat_type", result.ThreatType),
			zap.Int("risk_score", result.RiskScore),
			zap.Int("detections", len(dets)),
		)
	}
	return result
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
