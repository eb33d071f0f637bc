package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of the detection pipeline. A nil *Metrics is
// valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	analyses      *prometheus.CounterVec
	duration      prometheus.Histogram
	cacheLookups  *prometheus.CounterVec
	toolDecisions *prometheus.CounterVec
	reviews       *prometheus.CounterVec
	rules         prometheus.Gauge
	dropped       prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		analyses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securevector_analyze_total",
				Help: "Text analyses by outcome",
			},
			[]string{"result"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "securevector_analyze_duration_seconds",
				Help:    "Wall time of uncached analyses",
				Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securevector_cache_lookups_total",
				Help: "Analysis cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		toolDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securevector_tool_decisions_total",
				Help: "Tool permission decisions by action",
			},
			[]string{"action"},
		),
		reviews: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securevector_llm_reviews_total",
				Help: "Secondary LLM reviews by outcome",
			},
			[]string{"outcome"},
		),
		rules: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "securevector_active_rules",
				Help: "Rules currently loaded into the analyzer",
			},
		),
		dropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "securevector_events_dropped_total",
				Help: "Security events dropped because the write queue was full",
			},
		),
	}
}

// ObserveAnalysis records one completed analysis.
func (m *Metrics) ObserveAnalysis(threat bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "clean"
	if threat {
		result = "threat"
	}
	m.analyses.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
}

// ObserveCache records a cache lookup: "hit", "miss" or "expired".
func (m *Metrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// ObserveToolDecision records a tool decision by its action name.
func (m *Metrics) ObserveToolDecision(action string) {
	if m == nil {
		return
	}
	m.toolDecisions.WithLabelValues(action).Inc()
}

// ObserveReview records a review attempt: "reviewed", "failed" or "disabled".
func (m *Metrics) ObserveReview(outcome string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(outcome).Inc()
}

// SetActiveRules records the size of the current rule set.
func (m *Metrics) SetActiveRules(n int) {
	if m == nil {
		return
	}
	m.rules.Set(float64(n))
}

// EventDropped counts one event lost to a full write queue.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
