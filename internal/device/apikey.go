package device

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	apiKeyBytes  = 24
	apiKeyPrefix = "irr_"
)

// GenerateAPIKey creates a new random device API key and its storage digest.
//
// Returns:
//   - raw: The key handed to the device operator (shown once)
//   - hash: The value stored in devices.api_key_hash
//   - err: If the system random source fails
func GenerateAPIKey() (raw, hash string, err error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating api key: %w", err)
	}
	raw = apiKeyPrefix + hex.EncodeToString(b)
	return raw, HashAPIKey(raw), nil
}

// HashAPIKey returns the hex SHA-256 digest used to look a key up.
// Keys carry 192 bits of entropy, so an unsalted digest is sufficient and
// keeps lookups to a single indexed query.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns a loggable fragment of a raw key.
func KeyPrefix(raw string) string {
	const visible = 8
	if len(raw) <= visible {
		return "***"
	}
	return raw[:visible] + "..."
}

// AssignNewAPIKey generates a key for d, stores its digest on d and returns
// the raw key. Used when the device row is written inside a caller's
// transaction instead of through Registry.Register.
func AssignNewAPIKey(d *Device) (string, error) {
	raw, hash, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}
	d.APIKeyHash = hash
	return raw, nil
}
