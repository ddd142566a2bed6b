package bootstrap

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

const tokenSecretBytes = 32

// ResolveTokenSecret derives the credential signing secret from configuration.
// A 64-character hex key is decoded; any other key shorter than 32 bytes is
// hashed to 32 bytes. An empty key is only accepted in dev mode, where a random
// secret is generated and persisted credentials do not survive a restart.
func ResolveTokenSecret(key string, isDev bool, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		if !isDev {
			return "", errors.New("AUTH_TOKEN_SECRET is required outside dev mode")
		}
		buf := make([]byte, tokenSecretBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate token secret: %w", err)
		}
		logger.Warn("token secret is empty, using a random secret for this process")
		return string(buf), nil
	}

	// If the key is a hex string, decode it
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == tokenSecretBytes {
		return string(decoded), nil
	}
	if len(key) >= tokenSecretBytes {
		return key, nil
	}

	// Otherwise, hash the key to get a 32-byte key
	logger.Warn("token secret is shorter than 32 bytes, deriving key by hashing")
	hash := sha256.Sum256([]byte(key))
	return string(hash[:]), nil
}
