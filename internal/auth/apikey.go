package auth

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	APIKeyPrefix  = "hab_"
	liveKeyPrefix = APIKeyPrefix + "live_"
)

// NewAPIKey returns a fresh key; only its hash is ever stored.
func NewAPIKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return liveKeyPrefix + strings.ReplaceAll(id.String(), "-", ""), nil
}

// HashAPIKey creates a SHA256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return fmt.Sprintf("%x", hash)
}

// TruncateHash returns a truncated hash for display/logging
func TruncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
