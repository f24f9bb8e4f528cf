package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// BcryptVerifier checks passwords against stored bcrypt hashes. A
// principal without a registered hash is rejected outright.
type BcryptVerifier struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

// NewBcryptVerifier builds an empty verifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{hashes: make(map[string][]byte)}
}

// Register hashes and stores a password for a username.
func (v *BcryptVerifier) Register(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Errorf(domain.ErrInternal, "hash password: %v", err)
	}
	v.mu.Lock()
	v.hashes[username] = hash
	v.mu.Unlock()
	return nil
}

// Verify implements CredentialVerifier.
func (v *BcryptVerifier) Verify(username, password string, _ domain.Principal) error {
	v.mu.RLock()
	hash, ok := v.hashes[username]
	v.mu.RUnlock()
	if !ok {
		return domain.Errorf(domain.ErrUnauthorized, "no credentials on file")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return domain.Errorf(domain.ErrUnauthorized, "password mismatch")
	}
	return nil
}
