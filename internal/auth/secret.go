package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BCryptCost is the cost parameter for bcrypt hashing of API key secrets.
// Verification hits the cache on the hot path, so a full-cost hash is only
// paid on cache misses.
const BCryptCost = 12

// SecretHasher provides one-way hashing and verification for API key
// secrets. Only the hash of the secret half of a credential is ever
// persisted.
type SecretHasher struct {
	cost int
}

// NewSecretHasher creates a hasher with the default cost
func NewSecretHasher() *SecretHasher {
	return &SecretHasher{cost: BCryptCost}
}

// NewSecretHasherWithCost creates a hasher with an explicit cost.
// Tests use bcrypt.MinCost to keep the slow path cheap.
func NewSecretHasherWithCost(cost int) *SecretHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = BCryptCost
	}
	return &SecretHasher{cost: cost}
}

// Hash returns the bcrypt hash of a plaintext secret
func (h *SecretHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether the plaintext secret matches the stored hash
func (h *SecretHasher) Verify(secret, secretHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)) == nil
}
