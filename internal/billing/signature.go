package billing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/webhook"
)

// SignatureHeader carries the processor's signature.
const SignatureHeader = "X-Payment-Signature"

// ParseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]". Multiple
// v1 entries appear while the processor rotates secrets.
func ParseSignatureHeader(header string) (int64, []string, error) {
	var ts int64
	var sigs []string

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrMalformedSignature)
			}
			ts = n
		case "v1":
			if value != "" {
				sigs = append(sigs, value)
			}
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return 0, nil, ErrMalformedSignature
	}
	return ts, sigs, nil
}

// VerifySignature checks header against body with the shared secret.
func VerifySignature(secret, header string, body []byte, window time.Duration) error {
	ts, sigs, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	var lastErr error
	for _, sig := range sigs {
		lastErr = webhook.Verify(secret, sig, ts, body, time.Now(), window)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, webhook.ErrStaleTimestamp) {
			return lastErr
		}
	}
	return lastErr
}

// SignPayload builds a signature header for body. Used by the CLI and tests
// to simulate processor deliveries.
func SignPayload(secret string, body []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, webhook.Sign(secret, ts, body))
}
