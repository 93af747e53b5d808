package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash means a stored hash is not a PHC argon2id string.
	ErrInvalidHash = errors.New("invalid hash format")
	// ErrIncompatibleVersion means the hash was made by another argon2 version.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// hashParams is the argon2id cost of a hash.
type hashParams struct {
	time    uint32
	memory  uint32 // KiB
	threads uint8
	keyLen  uint32
	saltLen uint32
}

// keyHashParams follows the OWASP minimum for argon2id.
var keyHashParams = hashParams{time: 3, memory: 64 * 1024, threads: 4, keyLen: 32, saltLen: 16}

var b64 = base64.RawStdEncoding

// HashSecret returns the argon2id hash of secret in PHC form:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>.
func HashSecret(secret string) (string, error) {
	p := keyHashParams
	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(secret), salt, p.time, p.memory, p.threads, p.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads, b64.EncodeToString(salt), b64.EncodeToString(sum)), nil
}

// VerifySecret reports whether secret matches a HashSecret result. The cost
// is read from the hash, so keys hashed under older parameters still verify.
func VerifySecret(secret, encoded string) (bool, error) {
	p, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(secret), salt, p.time, p.memory, p.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decodeHash(encoded string) (hashParams, []byte, []byte, error) {
	var p hashParams
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	sum, err := b64.DecodeString(fields[5])
	if err != nil || len(sum) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	return p, salt, sum, nil
}

// CacheKey derives the auth cache key of a plaintext API key. It is a fast
// digest for lookups, never a storage hash.
func CacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:16])
}
