package review

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/tidwall/gjson"
)

const systemPrompt = `You are a security reviewer for an AI threat monitor. A regex engine has
already scanned a piece of user-supplied text. Decide whether its verdict is right.

Reply with a single JSON object and nothing else:
{"agrees": bool, "confidence": 0.0-1.0, "risk_adjustment": -100..100,
 "suggested_category": "prompt_injection|jailbreak|data_exfiltration|content_safety|null",
 "reasoning": "one sentence"}

risk_adjustment is how much the risk score should move. Use a positive number when the
text is more dangerous than the regex engine found and a negative number when it is a
false positive.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

func userPrompt(text string, r engine.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Regex verdict: is_threat=%t risk_score=%d threat_type=%q confidence=%.2f\n",
		r.IsThreat, r.RiskScore, r.ThreatType, r.Confidence)
	for _, d := range r.Detections {
		fmt.Fprintf(&b, "- matched %s (%s, score %d)\n", d.RuleID, d.ThreatType, d.RiskScore)
	}
	b.WriteString("\nText:\n<<<\n")
	b.WriteString(truncate(text, maxReviewText))
	b.WriteString("\n>>>")
	return b.String()
}

// parseReply extracts the verdict object from a chat completion body. Models
// often wrap JSON in prose or code fences, so the outermost braces are used.
func parseReply(raw []byte) (engine.ReviewResult, error) {
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return engine.ReviewResult{}, fmt.Errorf("malformed reply: no message content")
	}
	s := content.String()
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return engine.ReviewResult{}, fmt.Errorf("malformed reply: no JSON object")
	}
	obj := s[start : end+1]
	if !gjson.Valid(obj) {
		return engine.ReviewResult{}, fmt.Errorf("malformed reply: invalid JSON")
	}

	v := gjson.Parse(obj)
	agrees := v.Get("agrees")
	if agrees.Type != gjson.True && agrees.Type != gjson.False {
		return engine.ReviewResult{}, fmt.Errorf("malformed reply: missing agrees")
	}
	adj := int(math.Round(v.Get("risk_adjustment").Float()))

	out := engine.ReviewResult{
		Reviewed:       true,
		Agrees:         agrees.Bool(),
		Confidence:     min(1, max(0, v.Get("confidence").Float())),
		RiskAdjustment: min(100, max(-100, adj)),
		Reasoning:      strings.TrimSpace(v.Get("reasoning").String()),
	}
	if cat := v.Get("suggested_category"); cat.Type == gjson.String && cat.String() != "null" {
		out.SuggestedCategory = strings.TrimSpace(cat.String())
	}
	return out, nil
}

// truncate caps s at n bytes, backing off to a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...[truncated]"
}
