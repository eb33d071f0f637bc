// Package review asks an OpenAI-compatible chat model for a second opinion on
// a rule-stage analysis. Every failure degrades to an unreviewed result.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 500 * time.Millisecond
	maxReviewText     = 8000
)

// Config controls the review client. The zero value is disabled.
type Config struct {
	Enabled           bool
	Endpoint          string // base URL; "/chat/completions" is appended
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64 // <= 0 means unlimited
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// Client implements engine.Reviewer.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var _ engine.Reviewer = (*Client)(nil)

// NewClient builds a Client. A client without an endpoint is treated as disabled.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Enabled reports whether Review will contact the model.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.cfg.Endpoint != ""
}

// Review returns the model's opinion of result. It never returns an error:
// failures come back with Reviewed=false and Error set.
func (c *Client) Review(ctx context.Context, text string, result engine.AnalysisResult) engine.ReviewResult {
	if !c.Enabled() {
		return engine.ReviewResult{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := c.review(ctx, text, result)
	if err != nil {
		c.logger.Debug("llm review failed", zap.Error(err))
		return engine.ReviewResult{Error: err.Error()}
	}
	return out
}

func (c *Client) review(ctx context.Context, text string, result engine.AnalysisResult) (engine.ReviewResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Temperature: 0,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(text, result)},
		},
	})
	if err != nil {
		return engine.ReviewResult{}, fmt.Errorf("marshal request: %w", err)
	}
	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying llm review", zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return engine.ReviewResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return engine.ReviewResult{}, fmt.Errorf("rate limiter: %w", err)
		}

		raw, retry, err := c.do(ctx, url, body)
		if err == nil {
			return parseReply(raw)
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return engine.ReviewResult{}, err
		}
	}
	return engine.ReviewResult{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one request and reports whether a failure is worth retrying.
func (c *Client) do(ctx context.Context, url string, body []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("provider returned status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, false, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	return raw, false, nil
}
