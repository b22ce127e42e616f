// Package secrets issues and checks project API keys and webhook secrets.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "kycverify/pkg/domain-errors"
)

const (
	APIKeyPrefix        = "sk_live_"
	WebhookSecretPrefix = "whsec_"

	// LookupLength is how much of a key is stored in clear to find its project.
	LookupLength = len(APIKeyPrefix) + 8
)

// GenerateAPIKey returns a new secret key. Only its hash is persisted.
func GenerateAPIKey() (string, error) {
	s, err := random(32)
	if err != nil {
		return "", err
	}
	return APIKeyPrefix + s, nil
}

// GenerateWebhookSecret returns a new HMAC signing secret.
func GenerateWebhookSecret() (string, error) {
	s, err := random(24)
	if err != nil {
		return "", err
	}
	return WebhookSecretPrefix + s, nil
}

// LookupPrefix returns the indexed part of a key, or "" when the key is not
// shaped like one this package issued.
func LookupPrefix(apiKey string) string {
	if !strings.HasPrefix(apiKey, APIKeyPrefix) || len(apiKey) <= LookupLength {
		return ""
	}
	return apiKey[:LookupLength]
}

// Hash creates a bcrypt hash of the key.
func Hash(apiKey string) (string, error) {
	if apiKey == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a presented key against its stored hash.
func Verify(apiKey, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid API key")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}

func random(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
