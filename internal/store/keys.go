package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/auth"
)

// LookupByPrefix returns the key with the given lookup prefix, or nil if none.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*auth.KeyRecord, error) {
	var (
		k       auth.KeyRecord
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, key_prefix, key_hash, created_at, revoked_at
		FROM api_keys WHERE key_prefix = $1`, prefix,
	).Scan(&k.ID, &k.Name, &k.Prefix, &k.Hash, &k.CreatedAt, &revoked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	if revoked.Valid {
		k.RevokedAt = &revoked.Time
	}
	return &k, nil
}

// CreateAPIKey stores a key record. The plaintext key is never persisted.
func (s *Store) CreateAPIKey(ctx context.Context, k auth.KeyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, key_prefix, key_hash) VALUES ($1, $2, $3, $4)`,
		k.ID, k.Name, k.Prefix, k.Hash)
	if err != nil {
		return fmt.Errorf("CreateAPIKey: %w", err)
	}
	return nil
}
