package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// StoreAuthenticator validates keys against a KeyStore. Uses AuthCache with
// stale-while-revalidate to keep the store and bcrypt off the hot path.
type StoreAuthenticator struct {
	store  KeyStore
	cache  *AuthCache
	logger *zap.Logger
}

// StoreAuthConfig configures a StoreAuthenticator.
type StoreAuthConfig struct {
	Store    KeyStore
	CacheTTL time.Duration // Default: 30s
	Logger   *zap.Logger
}

// NewStoreAuthenticator creates an authenticator backed by a key store.
func NewStoreAuthenticator(cfg StoreAuthConfig) *StoreAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreAuthenticator{store: cfg.Store, cache: NewAuthCache(ttl), logger: logger}
}

// Authenticate serves from cache when possible. A stale hit is returned
// immediately and refreshed in the background.
func (a *StoreAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	result := a.cache.Get(apiKey)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Principal, nil
	}

	p, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return nil, ErrInvalidAPIKey
		}
		a.logger.Warn("auth store unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	a.cache.Set(apiKey, p)
	return p, nil
}

// backgroundRefresh re-verifies a stale key. On failure the entry is dropped
// so the next request does a synchronous lookup; this is how revoked keys
// age out.
func (a *StoreAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		a.cache.Delete(apiKey)
		return
	}
	a.cache.Set(apiKey, p)
}

func (a *StoreAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*Principal, error) {
	prefix, ok := KeyLookupPrefix(apiKey)
	if !ok {
		return nil, ErrInvalidAPIKey
	}
	rec, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if rec == nil || rec.RevokedAt != nil {
		return nil, ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}
	return &Principal{KeyID: rec.ID, Name: rec.Name}, nil
}
