package api

import (
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/chread"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/patterngen"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/toolcalls"
)

// --- POST /v1/analyze ---

// AnalyzeRequest is the JSON body for POST /v1/analyze.
type AnalyzeRequest struct {
	Text      string `json:"text"`
	Direction string `json:"direction,omitempty"` // "input" (default) or "output"
	Review    bool   `json:"review,omitempty"`
}

// AnalyzeResponse is the analysis plus the gate outcome.
type AnalyzeResponse struct {
	engine.AnalysisResult
	EventID   string               `json:"event_id"`
	Direction string               `json:"direction"`
	Blocked   bool                 `json:"blocked"`
	Degraded  bool                 `json:"degraded,omitempty"` // scan did not finish; fail policy applied
	Reason    string               `json:"reason,omitempty"`
	Review    *engine.ReviewResult `json:"review,omitempty"`
}

// --- Tool calls ---

// EvaluateToolRequest is the JSON body for POST /v1/tools/evaluate.
type EvaluateToolRequest struct {
	FunctionName string `json:"function_name"`
	Arguments    string `json:"arguments,omitempty"`
}

// EvaluateResponseResp is returned by POST /v1/tool-calls/evaluate.
type EvaluateResponseResp struct {
	ToolCalls []tools.CallDecision `json:"tool_calls"`
	Count     int                  `json:"count"`
	Blocked   bool                 `json:"blocked"` // at least one call was blocked
}

// EvaluateToolResp is returned by POST /v1/tools/evaluate.
type EvaluateToolResp struct {
	toolcalls.ToolCall
	Decision tools.Decision `json:"decision"`
}

// OverrideReq is the JSON body for PUT /api/tools/overrides/{tool_id}.
type OverrideReq struct {
	Action string `json:"action"`
}

// --- Rules ---

// RuleView is a rule with its overrides applied.
type RuleView struct {
	rules.Rule
	HasOverride bool `json:"has_override"`
}

// CreateRuleReq is the JSON body for POST /api/rules/custom.
type CreateRuleReq struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Category    rules.Category `json:"category"`
	Severity    rules.Severity `json:"severity"`
	Patterns    []string       `json:"patterns"`
	RiskScore   *int           `json:"risk_score,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Description string         `json:"description,omitempty"`
}

// UpdateRuleReq is the JSON body for PATCH /api/rules/custom/{rule_id}.
type UpdateRuleReq struct {
	Name        *string         `json:"name,omitempty"`
	Category    *rules.Category `json:"category,omitempty"`
	Severity    *rules.Severity `json:"severity,omitempty"`
	Patterns    []string        `json:"patterns,omitempty"`
	RiskScore   *int            `json:"risk_score,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Description *string         `json:"description,omitempty"`
}

// RuleOverrideReq is the JSON body for PUT /api/rules/overrides/{rule_id}.
type RuleOverrideReq struct {
	Enabled  *bool           `json:"enabled,omitempty"`
	Severity *rules.Severity `json:"severity,omitempty"`
	Patterns []string        `json:"patterns,omitempty"`
}

// GenerateReq is the JSON body for POST /api/rules/generate.
type GenerateReq struct {
	Description string `json:"description"`
}

// GenerateResp lists the generated candidate patterns.
type GenerateResp struct {
	Patterns []patterngen.GeneratedPattern `json:"patterns"`
}

// --- Events ---

// EventListResp is a page of stored events.
type EventListResp struct {
	Events   []chread.EventRow `json:"events"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
