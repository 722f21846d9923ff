package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// TokenBytes is the entropy of a QR session token (256 bits).
const TokenBytes = 32

func GenerateUUID() string {
	return uuid.NewString()
}

// GeneratePaymentID returns a ledger row id.
func GeneratePaymentID() string {
	return "pay_" + uuid.NewString()
}

// GenerateToken returns an unguessable URL-safe token built from TokenBytes of crypto/rand.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
