package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenByteLength is the number of random bytes in a generated secret,
// hex-encoded to 64 characters.
const tokenByteLength = 32

// GenerateSecureToken returns a random hex token for internal secrets such
// as the admin API key. Generated values are never shown to the operator.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
