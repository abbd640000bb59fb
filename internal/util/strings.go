package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// SafeTruncate returns at most maxLen bytes of s. Negative maxLen yields "".
// Used when only a prefix of an identifier may appear in logs.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL removes trailing slashes so endpoint URLs can be derived by
// plain concatenation.
//
//	NormalizeURL("https://as.example.com/") // "https://as.example.com"
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}

// RandomHex returns n bytes from crypto/rand encoded as lowercase hex
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
