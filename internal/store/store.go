// Package store persists operator-owned state: tool overrides, custom tools,
// the tool-call log, custom rules, rule overrides and API keys.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/auth"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
)

//go:embed schema.sql
var schemaSQL string

// Repository is everything the API needs from persistence. Store (Postgres)
// and MemoryStore both implement it.
type Repository interface {
	tools.Store
	rules.RuleSource
	auth.KeyStore

	GetCustomRule(ctx context.Context, id string) (*rules.Rule, error)
	CreateCustomRule(ctx context.Context, r rules.Rule) error
	UpdateCustomRule(ctx context.Context, id string, params UpdateRuleParams) (*rules.Rule, error)
	DeleteCustomRule(ctx context.Context, id string) (bool, error)
	SetRuleOverride(ctx context.Context, o rules.Override) error
	DeleteRuleOverride(ctx context.Context, ruleID string) (bool, error)

	CreateAPIKey(ctx context.Context, k auth.KeyRecord) error
	PruneToolCalls(ctx context.Context, before time.Time) (int64, error)
}

// UpdateRuleParams holds optional fields for partial custom rule updates.
// A nil field is left unchanged.
type UpdateRuleParams struct {
	Name        *string
	Category    *rules.Category
	Severity    *rules.Severity
	Patterns    []string
	RiskScore   *int
	Enabled     *bool
	Description *string
}

// Apply returns r with the non-nil params applied.
func (p UpdateRuleParams) Apply(r rules.Rule) rules.Rule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Severity != nil {
		r.Severity = *p.Severity
	}
	if p.Patterns != nil {
		r.Patterns = append([]string(nil), p.Patterns...)
	}
	if p.RiskScore != nil {
		r.RiskScore = *p.RiskScore
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	return r
}

// Store provides access to the PostgreSQL database.
type Store struct {
	db *sql.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres through the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return db, nil
}

// Migrate creates any missing tables. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}
