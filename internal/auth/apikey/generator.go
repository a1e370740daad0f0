package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/credgate/go-core/internal/auth"
)

const (
	keyIDBytes  = 16 // 128 bits, collision retried on insert
	secretBytes = 32 // 256 bits of entropy
)

// Generator produces API key credentials
type Generator struct{}

// NewGenerator creates a new generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a fresh key id, plaintext secret, and display preview.
// The secret leaves this process exactly once, in the creation response.
func (g *Generator) Generate() (keyID, secret, preview string, err error) {
	idBytes := make([]byte, keyIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", "", fmt.Errorf("generate key id: %w", err)
	}
	secretRaw := make([]byte, secretBytes)
	if _, err := rand.Read(secretRaw); err != nil {
		return "", "", "", fmt.Errorf("generate secret: %w", err)
	}

	keyID = KeyIDPrefix + base64.RawURLEncoding.EncodeToString(idBytes)
	secret = base64.RawURLEncoding.EncodeToString(secretRaw)
	preview = fmt.Sprintf("%s...%s", KeyIDPrefix, secret[len(secret)-4:])
	return keyID, secret, preview, nil
}

// SplitCredential splits a presented credential into key id and secret on
// the first separator. Malformed input fails without touching any store.
func SplitCredential(credential string) (keyID, secret string, err error) {
	keyID, secret, found := strings.Cut(credential, CredentialSeparator)
	if !found || keyID == "" || secret == "" {
		return "", "", auth.ErrInvalidCredentialFormat
	}
	return keyID, secret, nil
}
