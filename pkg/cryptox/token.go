package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the
// specified byte length, returned as a base64url-encoded string (URL-safe,
// no padding).
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNonce creates a hex-encoded random challenge value with the given
// number of bytes of entropy. SIWE nonces use 16 bytes (32 hex chars).
func GenerateNonce(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("nonce size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token.
// This is used to store hashed tokens, allowing lookup without retaining the
// original value.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// HMACBase64 computes an HMAC-SHA256 over data with the given key and returns
// it base64url-encoded without padding. Used for verification-link integrity
// hashes.
func HMACBase64(data, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HMACEqual compares two HMAC values in constant time.
func HMACEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
