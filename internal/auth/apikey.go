// Package auth issues and checks Hireloop credentials: argon2id-hashed API
// keys, the per-request auth context and signed team invitations.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// API keys have the form hl_{env}_{lookup}_{secret}:
//
//	hl_live_3f9a1c0b_5e0c8a7d94b1f2e63c0d7a8b9e1f2a3b
//
// lookup is stored in clear as api_keys.key_prefix and narrows the rows
// to verify; the key itself is only stored as an argon2id hash.
const (
	keyScheme = "hl"
	LookupLen = 8
	SecretLen = 32
)

// Key environments.
const (
	EnvLive = "live"
	EnvTest = "test"
)

// ErrInvalidKeyFormat means the presented string cannot be a Hireloop key.
var ErrInvalidKeyFormat = errors.New("invalid API key format")

// IssuedAPIKey is a freshly minted key. Plaintext goes to the caller once.
type IssuedAPIKey struct {
	Plaintext string
	Lookup    string
	Hash      string
}

// NewAPIKey mints a key. Any env other than "test" yields a live key.
func NewAPIKey(env string) (*IssuedAPIKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	raw := make([]byte, (LookupLen+SecretLen)/2)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	lookup := hex.EncodeToString(raw[:LookupLen/2])
	secret := hex.EncodeToString(raw[LookupLen/2:])
	plaintext := strings.Join([]string{keyScheme, env, lookup, secret}, "_")

	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}
	return &IssuedAPIKey{Plaintext: plaintext, Lookup: lookup, Hash: hash}, nil
}

// APIKeyParts is a key split into its fields.
type APIKeyParts struct {
	Env    string
	Lookup string
	Secret string
}

// SplitAPIKey validates the shape of a plaintext key and splits it.
func SplitAPIKey(key string) (APIKeyParts, error) {
	fields := strings.Split(key, "_")
	if len(fields) != 4 || fields[0] != keyScheme {
		return APIKeyParts{}, ErrInvalidKeyFormat
	}
	parts := APIKeyParts{Env: fields[1], Lookup: fields[2], Secret: fields[3]}
	if parts.Env != EnvLive && parts.Env != EnvTest {
		return APIKeyParts{}, ErrInvalidKeyFormat
	}
	if !isLowerHex(parts.Lookup, LookupLen) || !isLowerHex(parts.Secret, SecretLen) {
		return APIKeyParts{}, ErrInvalidKeyFormat
	}
	return parts, nil
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
