package rules

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

var _ RuleSource = (*mockSource)(nil)

type mockSource struct {
	custom    []Rule
	overrides map[string]Override
	err       error
}

func (m *mockSource) ListCustomRules(context.Context) ([]Rule, error) { return m.custom, m.err }

func (m *mockSource) ListRuleOverrides(context.Context) (map[string]Override, error) {
	return m.overrides, m.err
}

func communityRules() []Rule {
	return []Rule{
		{ID: "c1", Category: CategoryPromptInjection, Severity: SeverityHigh, Patterns: []string{"a"}, RiskScore: 80, Enabled: true, Source: SourceCommunity},
		{ID: "c2", Category: CategoryJailbreak, Severity: SeverityLow, Patterns: []string{"b"}, RiskScore: 30, Enabled: true, Source: SourceCommunity},
	}
}

func TestStore_EffectiveMergesCustomAndOverrides(t *testing.T) {
	src := &mockSource{
		custom: []Rule{
			{ID: "u1", Category: CategoryCustom, Severity: SeverityMedium, Patterns: []string{"c"}, RiskScore: 50, Enabled: true, Source: SourceCustom},
			{ID: "c1", Category: CategoryCustom, Patterns: []string{"shadow"}, Enabled: true, Source: SourceCustom},
		},
		overrides: map[string]Override{"c2": {RuleID: "c2", Enabled: boolPtr(false)}},
	}
	s := NewStore(communityRules(), src, zap.NewNop())

	got, err := s.Effective(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "u1" {
		t.Fatalf("effective = %+v", got)
	}
	if got[0].Patterns[0] != "a" {
		t.Fatal("custom rule must not shadow a community id")
	}
}

func TestStore_DeletingOverrideRestoresRule(t *testing.T) {
	src := &mockSource{overrides: map[string]Override{"c2": {RuleID: "c2", Enabled: boolPtr(false)}}}
	s := NewStore(communityRules(), src, zap.NewNop())

	got, _ := s.Effective(context.Background())
	if len(got) != 1 {
		t.Fatalf("expected c2 disabled, got %d rules", len(got))
	}

	src.overrides = map[string]Override{}
	got, _ = s.Effective(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected c2 restored, got %d rules", len(got))
	}
}

func TestStore_SourceErrorPropagates(t *testing.T) {
	s := NewStore(communityRules(), &mockSource{err: errors.New("db down")}, zap.NewNop())
	if _, err := s.Effective(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStore_NilSource(t *testing.T) {
	s := NewStore(communityRules(), nil, zap.NewNop())
	got, err := s.Effective(context.Background())
	if err != nil || len(got) != 2 {
		t.Fatalf("got %d rules, err %v", len(got), err)
	}
}

func TestStore_CheckCustom(t *testing.T) {
	s := NewStore(communityRules(), nil, zap.NewNop())
	valid := Rule{ID: "mine", Category: CategoryCustom, Severity: SeverityHigh, Patterns: []string{`foo\d+`}, RiskScore: 75, Enabled: true, Source: SourceCustom}

	if err := s.CheckCustom(valid); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	collide := valid
	collide.ID = "c1"
	if err := s.CheckCustom(collide); !errors.Is(err, ErrRuleIDCollision) {
		t.Fatalf("expected collision, got %v", err)
	}

	badRe := valid
	badRe.Patterns = []string{"(oops"}
	if err := s.CheckCustom(badRe); !errors.Is(err, ErrInvalidRule) {
		t.Fatal("expected regex error")
	}

	badCat := valid
	badCat.Category = "spam"
	if err := s.CheckCustom(badCat); err == nil {
		t.Fatal("expected category error")
	}
}

func TestStore_CheckOverride(t *testing.T) {
	s := NewStore(communityRules(), nil, zap.NewNop())
	if err := s.CheckOverride(Override{RuleID: "nope"}); !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected unknown rule, got %v", err)
	}
	bad := Severity("extreme")
	if err := s.CheckOverride(Override{RuleID: "c1", Severity: &bad}); err == nil {
		t.Fatal("expected severity error")
	}
	if err := s.CheckOverride(Override{RuleID: "c1", Patterns: []string{}}); err == nil {
		t.Fatal("expected empty patterns error")
	}
	if err := s.CheckOverride(Override{RuleID: "c1", Patterns: []string{"ok"}}); err != nil {
		t.Fatal(err)
	}
}
