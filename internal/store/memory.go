package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/auth"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
)

// MemoryStore is a process-local Repository used when no Postgres DSN is
// configured. State is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	overrides     map[string]tools.Action
	customTools   map[string]tools.Entry
	calls         []tools.CallRecord
	customRules   map[string]rules.Rule
	ruleOverrides map[string]rules.Override
	keys          map[string]auth.KeyRecord // by prefix
	now           func() time.Time
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		overrides:     make(map[string]tools.Action),
		customTools:   make(map[string]tools.Entry),
		customRules:   make(map[string]rules.Rule),
		ruleOverrides: make(map[string]rules.Override),
		keys:          make(map[string]auth.KeyRecord),
		now:           time.Now,
	}
}

func (m *MemoryStore) GetOverrides(_ context.Context) (map[string]tools.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.overrides), nil
}

func (m *MemoryStore) SetOverride(_ context.Context, toolID string, action tools.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[toolID] = action
	return nil
}

func (m *MemoryStore) DeleteOverride(_ context.Context, toolID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.overrides[toolID]
	delete(m.overrides, toolID)
	return ok, nil
}

func (m *MemoryStore) GetCustomTools(_ context.Context) (map[string]tools.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]tools.Entry, len(m.customTools))
	for id, e := range m.customTools {
		out[id] = cloneEntry(e)
	}
	return out, nil
}

func (m *MemoryStore) CreateCustomTool(_ context.Context, e tools.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customTools[e.ToolID]; ok {
		return tools.ErrToolExists
	}
	m.customTools[e.ToolID] = cloneEntry(e)
	return nil
}

func (m *MemoryStore) UpdateCustomTool(_ context.Context, e tools.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customTools[e.ToolID]; !ok {
		return false, nil
	}
	m.customTools[e.ToolID] = cloneEntry(e)
	return true, nil
}

func (m *MemoryStore) DeleteCustomTool(_ context.Context, toolID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customTools[toolID]; !ok {
		return false, nil
	}
	delete(m.customTools, toolID)
	delete(m.overrides, toolID)
	return true, nil
}

func (m *MemoryStore) CountRecentCalls(_ context.Context, toolID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.calls {
		if c.ToolID == toolID && c.Action != tools.ActionBlock && !c.At.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RecordToolCall(_ context.Context, rec tools.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.At.IsZero() {
		rec.At = m.now()
	}
	m.calls = append(m.calls, rec)
	return nil
}

func (m *MemoryStore) PruneToolCalls(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.calls[:0]
	for _, c := range m.calls {
		if !c.At.Before(before) {
			kept = append(kept, c)
		}
	}
	pruned := int64(len(m.calls) - len(kept))
	clear(m.calls[len(kept):])
	m.calls = kept
	return pruned, nil
}

func (m *MemoryStore) ListCustomRules(_ context.Context) ([]rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rules.Rule, 0, len(m.customRules))
	for _, id := range slices.Sorted(maps.Keys(m.customRules)) {
		out = append(out, cloneRule(m.customRules[id]))
	}
	return out, nil
}

func (m *MemoryStore) GetCustomRule(_ context.Context, id string) (*rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.customRules[id]
	if !ok {
		return nil, nil
	}
	r = cloneRule(r)
	return &r, nil
}

func (m *MemoryStore) CreateCustomRule(_ context.Context, r rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customRules[r.ID]; ok {
		return ErrRuleExists
	}
	r.Source = rules.SourceCustom
	m.customRules[r.ID] = cloneRule(r)
	return nil
}

func (m *MemoryStore) UpdateCustomRule(_ context.Context, id string, params UpdateRuleParams) (*rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.customRules[id]
	if !ok {
		return nil, nil
	}
	r = params.Apply(r)
	m.customRules[id] = r
	r = cloneRule(r)
	return &r, nil
}

func (m *MemoryStore) DeleteCustomRule(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.customRules[id]
	delete(m.customRules, id)
	return ok, nil
}

func (m *MemoryStore) ListRuleOverrides(_ context.Context) (map[string]rules.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]rules.Override, len(m.ruleOverrides))
	for id, o := range m.ruleOverrides {
		o.Patterns = slices.Clone(o.Patterns)
		out[id] = o
	}
	return out, nil
}

func (m *MemoryStore) SetRuleOverride(_ context.Context, o rules.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Patterns = slices.Clone(o.Patterns)
	m.ruleOverrides[o.RuleID] = o
	return nil
}

func (m *MemoryStore) DeleteRuleOverride(_ context.Context, ruleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ruleOverrides[ruleID]
	delete(m.ruleOverrides, ruleID)
	return ok, nil
}

func (m *MemoryStore) LookupByPrefix(_ context.Context, prefix string) (*auth.KeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[prefix]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (m *MemoryStore) CreateAPIKey(_ context.Context, k auth.KeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k.Prefix]; ok {
		return fmt.Errorf("CreateAPIKey: prefix %s already in use", k.Prefix)
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = m.now()
	}
	m.keys[k.Prefix] = k
	return nil
}

func cloneEntry(e tools.Entry) tools.Entry {
	if e.RateLimit != nil {
		rl := *e.RateLimit
		e.RateLimit = &rl
	}
	e.Capabilities = slices.Clone(e.Capabilities)
	e.ArgumentSchema = maps.Clone(e.ArgumentSchema)
	return e
}

func cloneRule(r rules.Rule) rules.Rule {
	r.Patterns = slices.Clone(r.Patterns)
	return r
}
