package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis(true, time.Millisecond)
	m.ObserveCache("hit")
	m.ObserveToolDecision("block")
	m.ObserveReview("failed")
	m.SetActiveRules(3)
	m.EventDropped()
}

func TestCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAnalysis(true, time.Millisecond)
	m.ObserveAnalysis(false, time.Millisecond)
	m.ObserveAnalysis(false, time.Millisecond)
	m.ObserveToolDecision("block")
	m.SetActiveRules(42)
	m.EventDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("threat")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.analyses.WithLabelValues("clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolDecisions.WithLabelValues("block")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.rules))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
}
