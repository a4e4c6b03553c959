// Package apikeys manages API key issuance, validation, and usage
// accounting. Only the SHA-256 hash of a key is ever stored; the
// plain text is returned exactly once at creation.
package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyPrefix is the fixed prefix of every issued key.
const KeyPrefix = "omni_sk_"

// PrimaryKeyName identifies the bootstrap key. It cannot be renamed
// or deleted.
const PrimaryKeyName = "__primary__"

const (
	secretLen    = 32
	prefixDigits = 8
)

// Key is one stored API key row. The plain secret is never part of
// this struct.
type Key struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyDisplay string     `json:"key_display"`
	Scopes     []string   `json:"scopes"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UsageCount int64      `json:"usage_count"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the key has an expiry in the past.
func (k Key) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// Validated is the trimmed result of a successful key check.
type Validated struct {
	ID     uuid.UUID
	Name   string
	Scopes []string
}

// CreateParams carry the fields for a new key.
type CreateParams struct {
	Name      string
	Scopes    []string
	ExpiresAt *time.Time
}

// UpdateParams carry partial key updates; nil fields are left alone.
type UpdateParams struct {
	Name      *string
	Scopes    []string
	ExpiresAt *time.Time
	ClearTTL  bool
}

// Created pairs a stored key with its plain secret. The secret is
// only available here, at creation time.
type Created struct {
	Key       Key
	PlainText string
}

const keyChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateKey returns a fresh random key with the standard prefix.
func GenerateKey() (string, error) {
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(KeyPrefix)
	for _, v := range buf {
		b.WriteByte(keyChars[int(v)%len(keyChars)])
	}
	return b.String(), nil
}

// HashKey returns the hex SHA-256 digest of a plain key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the short identifying fragment stored next to
// the hash, the first characters of the secret after the prefix.
func DisplayPrefix(key string) string {
	rest := strings.TrimPrefix(key, KeyPrefix)
	if len(rest) > prefixDigits {
		rest = rest[:prefixDigits]
	}
	return rest
}

// MaskKey renders a key for display from its stored prefix fragment.
func MaskKey(keyPrefix string) string {
	return KeyPrefix + keyPrefix + strings.Repeat("*", secretLen-prefixDigits)
}

// ScopeAllows reports whether the granted scopes cover required.
// "*" grants everything and "namespace:*" grants every action in
// that namespace.
func ScopeAllows(scopes []string, required string) bool {
	namespace, _, _ := strings.Cut(required, ":")
	for _, s := range scopes {
		if s == "*" || s == required || s == namespace+":*" {
			return true
		}
	}
	return false
}
