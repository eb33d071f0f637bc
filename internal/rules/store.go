package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"go.uber.org/zap"
)

var (
	ErrRuleIDCollision = errors.New("rule id collides with a community rule")
	ErrUnknownRule     = errors.New("unknown rule")
	ErrInvalidRule     = errors.New("invalid rule")
)

// RuleSource is the persistence collaborator for operator-owned rule data.
type RuleSource interface {
	ListCustomRules(ctx context.Context) ([]Rule, error)
	ListRuleOverrides(ctx context.Context) (map[string]Override, error)
}

// Store materializes the rule set consumed by the analyzer: community rules
// from declarative files plus custom rules and overrides from a RuleSource.
type Store struct {
	community []Rule
	byID      map[string]int
	source    RuleSource
	logger    *zap.Logger
}

// NewStore creates a Store over already-loaded community rules. source may be nil.
func NewStore(community []Rule, source RuleSource, logger *zap.Logger) *Store {
	byID := make(map[string]int, len(community))
	for i, r := range community {
		byID[r.ID] = i
	}
	return &Store{
		community: slices.Clone(community),
		byID:      byID,
		source:    source,
		logger:    logger,
	}
}

// IsCommunity reports whether id belongs to a bundled rule.
func (s *Store) IsCommunity(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Community returns the bundled rule by id.
func (s *Store) Community(id string) (Rule, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Rule{}, false
	}
	return s.community[i], true
}

// Snapshot returns every rule, community first, together with the current
// overrides. Disabled rules are included.
func (s *Store) Snapshot(ctx context.Context) ([]Rule, map[string]Override, error) {
	all := slices.Clone(s.community)
	if s.source == nil {
		return all, map[string]Override{}, nil
	}
	custom, err := s.source.ListCustomRules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("Snapshot: %w", err)
	}
	overrides, err := s.source.ListRuleOverrides(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("Snapshot: %w", err)
	}
	for _, r := range custom {
		if s.IsCommunity(r.ID) {
			s.logger.Warn("custom rule shadows community id, skipped", zap.String("rule_id", r.ID))
			continue
		}
		all = append(all, r)
	}
	return all, overrides, nil
}

// Effective returns the enabled rules with overrides applied, in store order.
func (s *Store) Effective(ctx context.Context) ([]Rule, error) {
	all, overrides, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return EffectiveRules(all, overrides), nil
}

// CheckCustom validates a rule about to be created or updated by an operator.
func (s *Store) CheckCustom(r Rule) error {
	if s.IsCommunity(r.ID) {
		return fmt.Errorf("%w: %s", ErrRuleIDCollision, r.ID)
	}
	if r.Source != SourceCustom {
		return fmt.Errorf("%w: %s: source must be %q", ErrInvalidRule, r.ID, SourceCustom)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := CompilePatterns(r.Patterns); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// CheckOverride validates an override against the rule it targets.
func (s *Store) CheckOverride(o Override) error {
	if !s.IsCommunity(o.RuleID) {
		return fmt.Errorf("%w: %s", ErrUnknownRule, o.RuleID)
	}
	if o.Severity != nil && !o.Severity.Valid() {
		return fmt.Errorf("%w: override %s: invalid severity %q", ErrInvalidRule, o.RuleID, *o.Severity)
	}
	if o.Patterns != nil {
		if len(o.Patterns) == 0 {
			return fmt.Errorf("%w: override %s: patterns must not be empty", ErrInvalidRule, o.RuleID)
		}
		if err := CompilePatterns(o.Patterns); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	}
	return nil
}

// CompilePatterns returns the first compile error among patterns.
func CompilePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return nil
}
