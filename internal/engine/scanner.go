package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/metrics"
	"go.uber.org/zap"
)

// ErrScanTimeout is returned when the rule stage misses its deadline. Callers
// apply their fail-open or fail-closed policy on it.
var ErrScanTimeout = errors.New("scan deadline exceeded")

// DefaultScanTimeout bounds the rule stage when no timeout is configured.
const DefaultScanTimeout = 100 * time.Millisecond

// Reviewer gives a second opinion on a regex-stage result. Implementations
// report failures inside the ReviewResult and never block past ctx.
type Reviewer interface {
	Review(ctx context.Context, text string, result AnalysisResult) ReviewResult
}

// ScanOptions selects optional stages of a scan.
type ScanOptions struct {
	Review bool
}

// ScanResult is the analysis plus the review that shaped it, if any.
type ScanResult struct {
	Analysis AnalysisResult `json:"analysis"`
	Review   *ReviewResult  `json:"review,omitempty"`
}

// Scanner runs the analyzer under a deadline and optionally consults a
// Reviewer, merging its opinion through a MergePolicy.
type Scanner struct {
	analyzer *Analyzer
	reviewer Reviewer
	policy   MergePolicy
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewScanner creates a Scanner. reviewer and m may be nil.
func NewScanner(a *Analyzer, reviewer Reviewer, policy MergePolicy, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Scanner {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Scanner{
		analyzer: a,
		reviewer: reviewer,
		policy:   policy,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

// Analyzer returns the underlying analyzer.
func (s *Scanner) Analyzer() *Analyzer { return s.analyzer }

// Scan analyzes text. The rule stage runs in its own goroutine and reports
// through a buffered channel, so a late result after the deadline is simply
// never read.
func (s *Scanner) Scan(ctx context.Context, text string, opts ScanOptions) (ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return ScanResult{}, fmt.Errorf("%w: %v", ErrScanTimeout, err)
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan AnalysisResult, 1)
	go func() {
		ch <- s.analyzer.Analyze(text)
	}()

	var result AnalysisResult
	select {
	case result = <-ch:
	case <-stageCtx.Done():
		s.logger.Warn("scan timeout exceeded",
			zap.Duration("timeout", s.timeout),
			zap.Int("text_len", len(text)),
		)
		return ScanResult{}, ErrScanTimeout
	}

	out := ScanResult{Analysis: result}
	if !opts.Review || s.reviewer == nil || Normalize(text) == "" {
		return out, nil
	}

	rv := s.reviewer.Review(ctx, text, result)
	out.Review = &rv
	switch {
	case !rv.Reviewed && rv.Error == "":
		s.metrics.ObserveReview("disabled")
	case !rv.Reviewed:
		s.metrics.ObserveReview("failed")
		s.logger.Warn("llm review failed, keeping rule result", zap.String("error", rv.Error))
	default:
		s.metrics.ObserveReview("reviewed")
		out.Analysis = s.policy.Apply(result, rv, s.analyzer.Thresholds())
	}
	return out, nil
}
