package webhook

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	t.Parallel()

	got := Sign("key", 1760000000, []byte(`{"a":1}`))
	if len(got) != 64 {
		t.Fatalf("signature %q is not hex sha256", got)
	}
	if got != Sign("key", 1760000000, []byte(`{"a":1}`)) {
		t.Error("Sign is not deterministic")
	}
	if got == Sign("key", 1760000001, []byte(`{"a":1}`)) {
		t.Error("timestamp is not part of the signed string")
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	key := SigningKey("whsec_test")
	body := []byte(`{"event_type":"application.created"}`)
	now := time.Unix(1760000000, 0)
	ts := now.Unix()
	sig := Sign(key, ts, body)

	tests := []struct {
		name string
		key  string
		sig  string
		ts   int64
		body []byte
		want error
	}{
		{"valid", key, sig, ts, body, nil},
		{"within tolerance", key, Sign(key, ts-240, body), ts - 240, body, nil},
		{"future within tolerance", key, Sign(key, ts+60, body), ts + 60, body, nil},
		{"stale", key, Sign(key, ts-600, body), ts - 600, body, ErrStaleTimestamp},
		{"too far ahead", key, Sign(key, ts+600, body), ts + 600, body, ErrStaleTimestamp},
		{"wrong key", SigningKey("whsec_other"), sig, ts, body, ErrBadSignature},
		{"tampered body", key, sig, ts, []byte(`{"event_type":"x"}`), ErrBadSignature},
		{"raw secret as key", "whsec_test", sig, ts, body, ErrBadSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Verify(tt.key, tt.sig, tt.ts, tt.body, now, DefaultTolerance)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewSecret(t *testing.T) {
	t.Parallel()

	a, err := NewSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewSecret()
	if !strings.HasPrefix(a, secretPrefix) || len(a) != len(secretPrefix)+64 {
		t.Errorf("secret %q has wrong shape", a)
	}
	if a == b {
		t.Error("secrets repeat")
	}
	if SigningKey(a) == a || len(SigningKey(a)) != 64 {
		t.Error("SigningKey must be a sha256 hex digest")
	}
}
