package tools

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolIDCollision is returned when a custom tool reuses an essential id.
	ErrToolIDCollision = errors.New("tool id collides with an essential tool")
	// ErrInvalidAction is returned for an override action other than block or allow.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidTool is returned when a tool entry fails validation.
	ErrInvalidTool = errors.New("invalid tool")
	// ErrToolExists is returned when creating a custom tool whose id is taken.
	ErrToolExists = errors.New("custom tool already exists")
	// ErrUnknownTool is returned when an operation names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Risk is the blast radius of a tool.
type Risk string

const (
	RiskRead   Risk = "read"
	RiskWrite  Risk = "write"
	RiskDelete Risk = "delete"
	RiskAdmin  Risk = "admin"
)

func (r Risk) Valid() bool {
	switch r {
	case RiskRead, RiskWrite, RiskDelete, RiskAdmin:
		return true
	}
	return false
}

// Permission is a registry default.
type Permission string

const (
	PermissionBlock Permission = "block"
	PermissionAllow Permission = "allow"
)

func (p Permission) Valid() bool {
	return p == PermissionBlock || p == PermissionAllow
}

// Action is the outcome of evaluating one tool call.
type Action string

const (
	ActionBlock   Action = "block"
	ActionAllow   Action = "allow"
	ActionLogOnly Action = "log_only"
)

// ParseOverrideAction accepts the two actions a user override may set.
func ParseOverrideAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionBlock, ActionAllow:
		return a, nil
	}
	return "", fmt.Errorf("%w %q: must be block or allow", ErrInvalidAction, s)
}

// Capability tags that the shipped registry must always block.
const (
	CapExternalSend       = "external_send"
	CapCredentialCreation = "credential_creation"
)

// RateLimit is a sliding-window call budget.
type RateLimit struct {
	MaxCalls      int `yaml:"max_calls" json:"max_calls"`
	WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
}

// Entry is one registered tool, essential or custom.
type Entry struct {
	ToolID            string         `yaml:"tool_id" json:"tool_id"`
	Name              string         `yaml:"name" json:"name"`
	Category          string         `yaml:"category" json:"category"`
	Risk              Risk           `yaml:"risk" json:"risk"`
	DefaultPermission Permission     `yaml:"default_permission" json:"default_permission"`
	RateLimit         *RateLimit     `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Description       string         `yaml:"description" json:"description"`
	Capabilities      []string       `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	ArgumentSchema    map[string]any `yaml:"argument_schema,omitempty" json:"argument_schema,omitempty"`
}

// HasCapability reports whether the entry is tagged with c.
func (e Entry) HasCapability(c string) bool {
	for _, have := range e.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Validate checks ids, enums and the rate limit.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.ToolID) == "":
		return fmt.Errorf("%w: tool_id is required", ErrInvalidTool)
	case len(e.ToolID) > 128:
		return fmt.Errorf("%w: tool_id longer than 128 characters", ErrInvalidTool)
	case !e.Risk.Valid():
		return fmt.Errorf("%w %s: unknown risk %q", ErrInvalidTool, e.ToolID, e.Risk)
	case !e.DefaultPermission.Valid():
		return fmt.Errorf("%w %s: unknown default_permission %q", ErrInvalidTool, e.ToolID, e.DefaultPermission)
	}
	if rl := e.RateLimit; rl != nil && (rl.MaxCalls < 1 || rl.WindowSeconds < 1) {
		return fmt.Errorf("%w %s: rate_limit needs max_calls and window_seconds of at least 1", ErrInvalidTool, e.ToolID)
	}
	return nil
}

// Decision is the verdict for one tool call.
type Decision struct {
	Action      Action  `json:"action"`
	ToolName    *string `json:"tool_name"`
	Risk        *Risk   `json:"risk"`
	Reason      string  `json:"reason"`
	IsEssential bool    `json:"is_essential"`
	HasOverride bool    `json:"has_override"`
}

// ToolView is a registry entry with its effective action, as listed to users.
type ToolView struct {
	Entry
	Source          string `json:"source"`
	EffectiveAction Action `json:"effective_action"`
	HasOverride     bool   `json:"has_override"`
}
