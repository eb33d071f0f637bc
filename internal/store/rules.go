package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
)

// ErrRuleExists is returned when a custom rule id is already taken.
var ErrRuleExists = errors.New("custom rule already exists")

const customRuleColumns = `id, name, category, severity, patterns, risk_score, enabled, description`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomRule(row rowScanner) (rules.Rule, error) {
	var (
		r                  rules.Rule
		category, severity string
		patterns           []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &category, &severity, &patterns,
		&r.RiskScore, &r.Enabled, &r.Description); err != nil {
		return r, err
	}
	r.Category = rules.Category(category)
	r.Severity = rules.Severity(severity)
	r.Source = rules.SourceCustom
	if err := json.Unmarshal(patterns, &r.Patterns); err != nil {
		return r, fmt.Errorf("rule %s: patterns: %w", r.ID, err)
	}
	return r, nil
}

// ListCustomRules returns all custom rules ordered by id.
func (s *Store) ListCustomRules(ctx context.Context) ([]rules.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customRuleColumns+` FROM custom_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListCustomRules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		r, err := scanCustomRule(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCustomRules: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCustomRules: %w", err)
	}
	return out, nil
}

// GetCustomRule returns a custom rule, or nil if not found.
func (s *Store) GetCustomRule(ctx context.Context, id string) (*rules.Rule, error) {
	r, err := scanCustomRule(s.db.QueryRowContext(ctx,
		`SELECT `+customRuleColumns+` FROM custom_rules WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCustomRule: %w", err)
	}
	return &r, nil
}

// CreateCustomRule inserts a custom rule. Returns ErrRuleExists when the id is taken.
func (s *Store) CreateCustomRule(ctx context.Context, r rules.Rule) error {
	patterns, err := json.Marshal(r.Patterns)
	if err != nil {
		return fmt.Errorf("CreateCustomRule: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_rules (`+customRuleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Name, string(r.Category), string(r.Severity), patterns,
		r.RiskScore, r.Enabled, r.Description)
	if err != nil {
		return fmt.Errorf("CreateCustomRule: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("CreateCustomRule: %w", err)
	}
	if !ok {
		return ErrRuleExists
	}
	return nil
}

// UpdateCustomRule applies a partial update. Only non-nil fields are changed.
// Returns nil if the rule does not exist.
func (s *Store) UpdateCustomRule(ctx context.Context, id string, params UpdateRuleParams) (*rules.Rule, error) {
	var patterns any
	if params.Patterns != nil {
		b, err := json.Marshal(params.Patterns)
		if err != nil {
			return nil, fmt.Errorf("UpdateCustomRule: %w", err)
		}
		patterns = b
	}
	r, err := scanCustomRule(s.db.QueryRowContext(ctx, `
		UPDATE custom_rules SET
			name        = COALESCE($2, name),
			category    = COALESCE($3, category),
			severity    = COALESCE($4, severity),
			patterns    = COALESCE($5, patterns),
			risk_score  = COALESCE($6, risk_score),
			enabled     = COALESCE($7, enabled),
			description = COALESCE($8, description),
			updated_at  = now()
		WHERE id = $1
		RETURNING `+customRuleColumns,
		id, params.Name, nullableString(params.Category), nullableString(params.Severity),
		patterns, params.RiskScore, params.Enabled, params.Description))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateCustomRule: %w", err)
	}
	return &r, nil
}

// DeleteCustomRule removes a custom rule and reports whether it existed.
func (s *Store) DeleteCustomRule(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_rules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("DeleteCustomRule: %w", err)
	}
	return affected(res)
}

// ListRuleOverrides returns every rule override keyed by rule id.
func (s *Store) ListRuleOverrides(ctx context.Context) (map[string]rules.Override, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rule_id, enabled, severity, patterns FROM rule_overrides`)
	if err != nil {
		return nil, fmt.Errorf("ListRuleOverrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]rules.Override)
	for rows.Next() {
		var (
			o        rules.Override
			enabled  sql.NullBool
			severity sql.NullString
			patterns []byte
		)
		if err := rows.Scan(&o.RuleID, &enabled, &severity, &patterns); err != nil {
			return nil, fmt.Errorf("ListRuleOverrides: %w", err)
		}
		if enabled.Valid {
			o.Enabled = &enabled.Bool
		}
		if severity.Valid {
			sev := rules.Severity(severity.String)
			o.Severity = &sev
		}
		if patterns != nil {
			if err := json.Unmarshal(patterns, &o.Patterns); err != nil {
				return nil, fmt.Errorf("ListRuleOverrides: rule %s: %w", o.RuleID, err)
			}
		}
		out[o.RuleID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRuleOverrides: %w", err)
	}
	return out, nil
}

// SetRuleOverride replaces the override for a rule.
func (s *Store) SetRuleOverride(ctx context.Context, o rules.Override) error {
	var patterns any
	if o.Patterns != nil {
		b, err := json.Marshal(o.Patterns)
		if err != nil {
			return fmt.Errorf("SetRuleOverride: %w", err)
		}
		patterns = b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_overrides (rule_id, enabled, severity, patterns) VALUES ($1, $2, $3, $4)
		ON CONFLICT (rule_id) DO UPDATE SET
			enabled = EXCLUDED.enabled, severity = EXCLUDED.severity,
			patterns = EXCLUDED.patterns, updated_at = now()`,
		o.RuleID, o.Enabled, nullableString(o.Severity), patterns)
	if err != nil {
		return fmt.Errorf("SetRuleOverride: %w", err)
	}
	return nil
}

// DeleteRuleOverride removes a rule override and reports whether one existed.
func (s *Store) DeleteRuleOverride(ctx context.Context, ruleID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rule_overrides WHERE rule_id = $1`, ruleID)
	if err != nil {
		return false, fmt.Errorf("DeleteRuleOverride: %w", err)
	}
	return affected(res)
}

// nullableString returns nil (SQL NULL) if the pointer is nil, otherwise the string value.
func nullableString[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return string(*v)
}
