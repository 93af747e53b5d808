// Package webhook delivers signed event notifications to tenant endpoints.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Deliveries are POSTed with these headers. The signature is the hex
// HMAC-SHA256 of "<timestamp>.<body>".
const (
	HeaderSignature  = "X-Hireloop-Signature"
	HeaderTimestamp  = "X-Hireloop-Timestamp"
	HeaderDeliveryID = "X-Hireloop-Delivery-Id"
	HeaderEventType  = "X-Hireloop-Event"
)

// DefaultTolerance is how far a signed timestamp may drift from now.
const DefaultTolerance = 5 * time.Minute

const secretPrefix = "whsec_"

var (
	ErrStaleTimestamp = errors.New("signature timestamp outside tolerance")
	ErrBadSignature   = errors.New("signature mismatch")
)

// NewSecret returns a random endpoint secret. It is shown to the tenant
// once; only SigningKey(secret) is stored.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(b), nil
}

// SigningKey is the stored form of an endpoint secret and the HMAC key
// deliveries are signed with. Receivers derive it from their copy of the
// secret the same way.
func SigningKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Sign returns the hex signature of body sent at unix time ts.
func Sign(key string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(strconv.AppendInt(nil, ts, 10))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sig against body and rejects timestamps more than
// tolerance away from now.
func Verify(key, sig string, ts int64, body []byte, now time.Time, tolerance time.Duration) error {
	if d := now.Sub(time.Unix(ts, 0)); d > tolerance || d < -tolerance {
		return ErrStaleTimestamp
	}
	if !hmac.Equal([]byte(Sign(key, ts, body)), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}
