package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for writing threat events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *SecurityEvent)
	Close()
}

// Event kinds.
const (
	KindText       = "text"
	KindToolCall   = "tool_call"
	KindToolConfig = "tool_config" // override or custom tool change
)

// SecurityEvent is one analysis or tool decision to be persisted.
type SecurityEvent struct {
	EventID        string
	Timestamp      time.Time
	Kind           string
	Direction      string // "input" or "output" for text scans
	Action         string // allow, warn, review, block or log_only
	Reason         string
	IsThreat       bool
	RiskScore      uint8
	ThreatType     string
	Confidence     float32
	RuleIDs        []string
	PayloadPreview string // First 500 chars
	PayloadHash    string // SHA256 of full payload
	PayloadSize    uint32
	ToolName       string // function name as the model sent it
	ToolID         string // resolved registry id, empty when unknown
	ToolArguments  string
	ToolRisk       string
	IsEssential    bool
	Cached         bool
	ReviewApplied  bool
	LatencyMs      float32
	Source         string // "api" or "cli"
}

// PayloadPreviewLength is the max chars stored in payload_preview.
const PayloadPreviewLength = 500

// TruncatePayload returns the first N characters (runes) of a payload for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}

// HashPayload returns the hex SHA-256 of payload.
func HashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
