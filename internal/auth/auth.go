package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Key holds the hashed key and a short prefix for identification.
type Key struct {
	Hash   string
	Prefix string // first 14 characters of the plaintext key
}

// GenerateKey creates a new API key with the "tollbook_" prefix followed by
// 32 URL-safe random characters. It returns the Key struct (containing the
// hash and prefix) and the full plaintext key.
func GenerateKey() (Key, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return Key{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	random := base64.RawURLEncoding.EncodeToString(b)
	plaintext := "tollbook_" + random

	key := Key{
		Hash:   HashKey(plaintext),
		Prefix: plaintext[:14],
	}

	return key, plaintext, nil
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// VerifyIngestKey compares a presented key against the configured SHA-256
// hash in constant time.
func VerifyIngestKey(presented, wantHash string) bool {
	if wantHash == "" {
		return false
	}
	got := HashKey(presented)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}

// HashAdminKey returns a bcrypt hash of the admin key, for storing in config.
func HashAdminKey(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing admin key: %w", err)
	}
	return string(h), nil
}

// VerifyAdminKey compares a presented admin key against its bcrypt hash.
func VerifyAdminKey(presented, wantHash string) bool {
	if wantHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(wantHash), []byte(presented)) == nil
}
