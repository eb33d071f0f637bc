package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every API key issued by GenerateAPIKey.
const KeyPrefix = "svk_"

// prefixLen is the number of leading key characters stored in clear for lookup.
const prefixLen = 12

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// Principal identifies the caller behind a verified key.
type Principal struct {
	KeyID string
	Name  string
}

// Authenticator validates the key presented on a request.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Principal, error)
}

// KeyRecord is a stored API key. Only the bcrypt hash of the key is kept.
type KeyRecord struct {
	ID        string
	Name      string
	Prefix    string
	Hash      string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// KeyStore looks up stored keys. LookupByPrefix returns nil, nil when no key
// carries the prefix.
type KeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*KeyRecord, error)
}

// ExtractAPIKey reads the key from "Authorization: Bearer <key>" or, failing
// that, the X-Api-Key header.
func ExtractAPIKey(r *http.Request) (string, error) {
	if token := r.Header.Get("Authorization"); token != "" {
		// RFC 6750: the "Bearer" scheme is case-insensitive.
		if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
			token = token[7:]
		}
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-Api-Key")); key != "" {
		return key, nil
	}
	return "", ErrMissingAPIKey
}

// KeyLookupPrefix returns the stored lookup prefix of apiKey.
func KeyLookupPrefix(apiKey string) (string, bool) {
	if len(apiKey) < prefixLen || !strings.HasPrefix(apiKey, KeyPrefix) {
		return "", false
	}
	return apiKey[:prefixLen], true
}

// GenerateAPIKey creates a new svk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	return generateAPIKey(bcrypt.DefaultCost)
}

func generateAPIKey(cost int) (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := KeyPrefix + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), cost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	return fullKey, string(hashBytes), fullKey[:prefixLen], nil
}

// StaticAuthenticator accepts the single key whose bcrypt hash is configured
// in SV_API_KEY_HASH. Verified keys are cached so bcrypt runs once per key
// per TTL.
type StaticAuthenticator struct {
	hash  []byte
	cache *AuthCache
}

// NewStaticAuthenticator creates an authenticator for one bcrypt hash.
func NewStaticAuthenticator(hash string, cacheTTL time.Duration) (*StaticAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("NewStaticAuthenticator: %w", err)
	}
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &StaticAuthenticator{hash: []byte(hash), cache: NewAuthCache(cacheTTL)}, nil
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*Principal, error) {
	if res := a.cache.Get(apiKey); res.Hit {
		// The hash never changes, so a stale entry is still valid.
		a.cache.Set(apiKey, res.Principal)
		return res.Principal, nil
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}
	p := &Principal{KeyID: "static", Name: "static"}
	a.cache.Set(apiKey, p)
	return p, nil
}
