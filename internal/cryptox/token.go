// Package cryptox provides the random material used by the auth core:
// single-use verification/reset tokens and refresh-token identifiers.
package cryptox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the amount of entropy behind every generated token.
// 32 bytes render as a 64-character lowercase hex string.
const TokenBytes = 32

// NewToken returns a fresh high-entropy token as a fixed-length lowercase
// hexadecimal string. The only failure mode is the OS random source being
// unavailable.
func NewToken() (string, error) {
	return randHex(TokenBytes)
}

func randHex(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random source: %w", err)
	}
	return hex.EncodeToString(b), nil
}
