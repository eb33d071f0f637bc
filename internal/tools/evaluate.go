package tools

import (
	"fmt"
	"strings"
)

const (
	reasonEssential = "Essential tool default"
	reasonCustom    = "Custom tool default"
	reasonOverride  = "User override"

	// Names shorter than this never partially match.
	minPartialName = 3
)

// Evaluate resolves name against the registries and returns the effective
// decision. Resolution order: exact essential, exact custom, partial
// essential, then log_only for anything unknown. Overrides are keyed by the
// resolved tool id.
func Evaluate(name string, essential *Registry, overrides map[string]Action, custom map[string]Entry) Decision {
	res, ok := resolve(name, essential, custom)
	if !ok {
		return Decision{Action: ActionLogOnly, Reason: "Unknown tool"}
	}
	return res.decide(overrides)
}

// Resolve returns the registry entry Evaluate would use for name.
func Resolve(name string, essential *Registry, custom map[string]Entry) (Entry, bool) {
	res, ok := resolve(name, essential, custom)
	return res.entry, ok
}

type resolution struct {
	entry     Entry
	essential bool
	matched   bool // resolved by partial name
}

func resolve(name string, essential *Registry, custom map[string]Entry) (resolution, bool) {
	if essential != nil {
		if e, ok := essential.Get(name); ok {
			return resolution{entry: e, essential: true}, true
		}
	}
	if e, ok := custom[name]; ok {
		return resolution{entry: e}, true
	}
	if essential != nil {
		if e, ok := partialMatch(name, essential); ok {
			return resolution{entry: e, essential: true, matched: true}, true
		}
	}
	return resolution{}, false
}

func (r resolution) decide(overrides map[string]Action) Decision {
	e := r.entry
	d := Decision{
		Action:      Action(e.DefaultPermission),
		ToolName:    ptr(e.ToolID),
		Risk:        ptr(e.Risk),
		Reason:      reasonCustom,
		IsEssential: r.essential,
	}
	if r.essential {
		d.Reason = reasonEssential
	}
	if a, ok := overrides[e.ToolID]; ok && (a == ActionBlock || a == ActionAllow) {
		d.Action = a
		d.Reason = reasonOverride
		d.HasOverride = true
	}
	if r.matched {
		d.Reason += fmt.Sprintf(" (matched %s)", e.ToolID)
	}
	return d
}

// partialMatch finds the essential entry an unqualified or oddly cased name
// most likely refers to. Candidates are ranked by tier, best first:
//
//	0: equal ignoring case
//	1: id ends with name at a segment boundary (. _ - /)
//	2: id ends with name
//	3: id contains name
//
// Within a tier the earliest declared entry wins.
func partialMatch(name string, r *Registry) (Entry, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if len(n) < minPartialName {
		return Entry{}, false
	}
	bestTier, bestID := 4, ""
	for _, id := range r.order {
		tier := matchTier(strings.ToLower(id), n)
		if tier < bestTier {
			bestTier, bestID = tier, id
			if tier == 0 {
				break
			}
		}
	}
	if bestID == "" {
		return Entry{}, false
	}
	return r.entries[bestID], true
}

func matchTier(id, name string) int {
	switch {
	case id == name:
		return 0
	case strings.HasSuffix(id, name):
		if strings.ContainsRune("._-/", rune(id[len(id)-len(name)-1])) {
			return 1
		}
		return 2
	case strings.Contains(id, name):
		return 3
	}
	return 4
}

// ApplyRateLimit forces a block when recentCalls has reached the entry's
// budget. Decisions that already block are returned unchanged.
func ApplyRateLimit(d Decision, e Entry, recentCalls int) Decision {
	rl := e.RateLimit
	if rl == nil || rl.MaxCalls <= 0 || d.Action == ActionBlock {
		return d
	}
	if recentCalls < rl.MaxCalls {
		return d
	}
	d.Action = ActionBlock
	d.Reason = fmt.Sprintf("Rate limited: %d/%d calls in the last %ds", recentCalls, rl.MaxCalls, rl.WindowSeconds)
	return d
}

// ValidateCustom checks a custom entry before it is stored.
func ValidateCustom(e Entry, essential *Registry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if essential != nil {
		if _, ok := essential.Get(e.ToolID); ok {
			return fmt.Errorf("%w: %s", ErrToolIDCollision, e.ToolID)
		}
	}
	if e.ArgumentSchema != nil {
		if _, err := CompileSchema(e.ArgumentSchema); err != nil {
			return fmt.Errorf("%w %s: %v", ErrInvalidTool, e.ToolID, err)
		}
	}
	return nil
}

// View builds the listing row for e.
func View(e Entry, source string, overrides map[string]Action) ToolView {
	v := ToolView{Entry: e, Source: source, EffectiveAction: Action(e.DefaultPermission)}
	if a, ok := overrides[e.ToolID]; ok {
		v.EffectiveAction = a
		v.HasOverride = true
	}
	return v
}

func ptr[T any](v T) *T { return &v }
