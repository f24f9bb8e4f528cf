// Package auth issues and verifies the two credential forms the gateway
// accepts: bearer tokens (HS256 JWT) and static API keys. Principals
// live in an in-process store seeded at startup.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// CredentialVerifier checks a username/password pair against whatever
// backs the principal store. The demo deployment accepts any password
// for a known principal; production wires the bcrypt verifier.
type CredentialVerifier interface {
	Verify(username, password string, p domain.Principal) error
}

// DemoVerifier accepts any password for a known principal.
type DemoVerifier struct{}

// Verify always succeeds.
func (DemoVerifier) Verify(string, string, domain.Principal) error { return nil }

// Service owns principals, API keys and token issuance. Safe for
// concurrent use; the principal set is read-only after seeding.
type Service struct {
	secret   []byte
	lifetime time.Duration

	verifier CredentialVerifier

	mu       sync.RWMutex
	byName   map[string]domain.Principal
	byAPIKey map[string]string // api key -> username

	// test seam
	now func() time.Time
}

// New builds the service. secret signs HS256 tokens and must be kept
// out of logs.
func New(secret string, lifetime time.Duration, verifier CredentialVerifier) *Service {
	return &Service{
		secret:   []byte(secret),
		lifetime: lifetime,
		verifier: verifier,
		byName:   make(map[string]domain.Principal),
		byAPIKey: make(map[string]string),
		now:      time.Now,
	}
}

// Seed registers a principal and mints its API key. Returns the stored
// principal with the key populated.
func (s *Service) Seed(username, email string, tier domain.Tier) (domain.Principal, error) {
	key, err := newAPIKey()
	if err != nil {
		return domain.Principal{}, fmt.Errorf("op=auth.Seed: %w", err)
	}
	p := domain.Principal{Username: username, Email: email, Tier: tier, APIKey: key}

	s.mu.Lock()
	s.byName[username] = p
	s.byAPIKey[key] = username
	s.mu.Unlock()
	return p, nil
}

// SeedDefaults registers the three demo principals.
func (s *Service) SeedDefaults() ([]domain.Principal, error) {
	seeds := []struct {
		username string
		email    string
		tier     domain.Tier
	}{
		{"demo", "demo@s2intelligence.ai", domain.TierFree},
		{"beta_tester", "beta@s2intelligence.ai", domain.TierBeta},
		{"premium", "premium@s2intelligence.ai", domain.TierPremium},
	}
	out := make([]domain.Principal, 0, len(seeds))
	for _, sd := range seeds {
		p, err := s.Seed(sd.username, sd.email, sd.tier)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Lookup resolves a principal by username.
func (s *Service) Lookup(username string) (domain.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[username]
	return p, ok
}

// Login verifies credentials and issues a token.
func (s *Service) Login(username, password string) (string, domain.Principal, error) {
	p, ok := s.Lookup(username)
	if !ok {
		return "", domain.Principal{}, domain.Errorf(domain.ErrUnauthorized, "unknown principal")
	}
	if err := s.verifier.Verify(username, password, p); err != nil {
		return "", domain.Principal{}, domain.Errorf(domain.ErrUnauthorized, "bad credentials")
	}
	tok, err := s.IssueToken(p)
	if err != nil {
		return "", domain.Principal{}, err
	}
	return tok, p, nil
}

type claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Tier     string `json:"tier"`
	jwt.RegisteredClaims
}

// IssueToken mints an HS256 token for a principal.
func (s *Service) IssueToken(p domain.Principal) (string, error) {
	now := s.now()
	c := claims{
		Username: p.Username,
		Email:    p.Email,
		Tier:     string(p.Tier),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("op=auth.IssueToken: %w", err)
	}
	return tok, nil
}

// TokenLifetime reports the configured token validity window.
func (s *Service) TokenLifetime() time.Duration { return s.lifetime }

// VerifyToken parses and validates a bearer token, distinguishing
// expiry from every other defect.
func (s *Service) VerifyToken(raw string) (domain.Principal, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if isExpired(err) {
			return domain.Principal{}, domain.Errorf(domain.ErrTokenExpired, "bearer token")
		}
		return domain.Principal{}, domain.Errorf(domain.ErrTokenInvalid, "bearer token")
	}
	if !tok.Valid {
		return domain.Principal{}, domain.Errorf(domain.ErrTokenInvalid, "bearer token")
	}

	// The store is authoritative for tier; the token only names the
	// principal.
	if p, ok := s.Lookup(c.Username); ok {
		return p, nil
	}
	tier, err := domain.ParseTier(c.Tier)
	if err != nil {
		return domain.Principal{}, domain.Errorf(domain.ErrTokenInvalid, "bearer token")
	}
	return domain.Principal{Username: c.Username, Email: c.Email, Tier: tier}, nil
}

// VerifyAPIKey resolves a principal from a static key.
func (s *Service) VerifyAPIKey(key string) (domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for stored, username := range s.byAPIKey {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(key)) == 1 {
			return s.byName[username], nil
		}
	}
	return domain.Principal{}, domain.Errorf(domain.ErrUnauthorized, "unknown api key")
}

func isExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// newAPIKey returns "sk-" plus 32 random bytes, URL-safe base64 without
// padding.
func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + base64.RawURLEncoding.EncodeToString(buf), nil
}
