package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"go.uber.org/zap"
)

type fakeReviewer struct {
	result ReviewResult
	calls  int
	seen   AnalysisResult
}

func (f *fakeReviewer) Review(_ context.Context, _ string, r AnalysisResult) ReviewResult {
	f.calls++
	f.seen = r
	return f.result
}

func newTestScanner(t *testing.T, rv Reviewer) *Scanner {
	t.Helper()
	a := newTestAnalyzer(t, []rules.Rule{rule("r", rules.CategoryJailbreak, 60, `sneaky`)})
	return NewScanner(a, rv, DefaultMergePolicy(), time.Second, zap.NewNop(), nil)
}

func TestScan_NoReview(t *testing.T) {
	rv := &fakeReviewer{}
	s := newTestScanner(t, rv)
	res, err := s.Scan(context.Background(), "something sneaky", ScanOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rv.calls != 0 || res.Review != nil {
		t.Fatal("reviewer consulted without opt-in")
	}
	if res.Analysis.RiskScore != 60 {
		t.Fatalf("risk_score = %d", res.Analysis.RiskScore)
	}
}

func TestScan_ReviewEscalates(t *testing.T) {
	rv := &fakeReviewer{result: ReviewResult{Reviewed: true, Agrees: false, Confidence: 0.9, RiskAdjustment: 25}}
	s := newTestScanner(t, rv)
	res, err := s.Scan(context.Background(), "something sneaky", ScanOptions{Review: true})
	if err != nil {
		t.Fatal(err)
	}
	if rv.calls != 1 || rv.seen.RiskScore != 60 {
		t.Fatalf("reviewer saw %+v", rv.seen)
	}
	if !res.Analysis.ReviewApplied || res.Analysis.RiskScore != 85 || !res.Analysis.IsThreat {
		t.Fatalf("merged = %+v", res.Analysis)
	}
	if res.Review == nil || !res.Review.Reviewed {
		t.Fatal("review missing from result")
	}
}

func TestScan_ReviewFailureKeepsRuleResult(t *testing.T) {
	rv := &fakeReviewer{result: ReviewResult{Error: "connection refused"}}
	s := newTestScanner(t, rv)
	res, err := s.Scan(context.Background(), "something sneaky", ScanOptions{Review: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Analysis.ReviewApplied || res.Analysis.RiskScore != 60 {
		t.Fatalf("failed review changed the result: %+v", res.Analysis)
	}
	if res.Review == nil || res.Review.Error == "" {
		t.Fatal("review error should be surfaced")
	}
}

func TestScan_NilReviewer(t *testing.T) {
	s := newTestScanner(t, nil)
	res, err := s.Scan(context.Background(), "something sneaky", ScanOptions{Review: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Review != nil || res.Analysis.RiskScore != 60 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestScan_EmptyTextSkipsReview(t *testing.T) {
	rv := &fakeReviewer{result: ReviewResult{Reviewed: true, Confidence: 1, RiskAdjustment: 50}}
	s := newTestScanner(t, rv)
	res, err := s.Scan(context.Background(), "   ", ScanOptions{Review: true})
	if err != nil {
		t.Fatal(err)
	}
	if rv.calls != 0 || res.Analysis.RiskScore != 0 {
		t.Fatalf("empty text was reviewed: %+v", res)
	}
}

func TestScan_CancelledContext(t *testing.T) {
	s := newTestScanner(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, "something sneaky", ScanOptions{})
	if !errors.Is(err, ErrScanTimeout) {
		t.Fatalf("err = %v, want ErrScanTimeout", err)
	}
}

func TestNewScanner_DefaultTimeout(t *testing.T) {
	s := NewScanner(newTestAnalyzer(t, nil), nil, DefaultMergePolicy(), 0, zap.NewNop(), nil)
	if s.timeout != DefaultScanTimeout {
		t.Fatalf("timeout = %v", s.timeout)
	}
}
