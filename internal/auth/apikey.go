package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// KeyPrefixLiteral starts every tenant API key.
const KeyPrefixLiteral = "qtr_"

// GenerateKey creates a new API key: qtr_ followed by 24 random bytes,
// base64url encoded.
func GenerateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return KeyPrefixLiteral + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashKey returns the SHA-256 hex digest of an API key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix returns a display-safe prefix of a key: qtr_ plus 8 chars.
func KeyPrefix(key string) string {
	n := len(KeyPrefixLiteral) + 8
	if len(key) <= n {
		return key
	}
	return key[:n]
}

// Tenant is the account an API key resolves to.
type Tenant struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Plan                 string `json:"plan"`
	RPMLimit             *int   `json:"rpm_limit,omitempty"`
	DailySpendLimitCents *int   `json:"daily_spend_limit_cents,omitempty"`
}
