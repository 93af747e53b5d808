package webhook

import (
	"net/http"
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	mid := func() float64 { return 0.5 }
	low := func() float64 { return 0 }
	high := func() float64 { return 0.999999 }

	tests := []struct {
		failed int
		rnd    func() float64
		want   time.Duration
	}{
		{0, mid, time.Minute},
		{1, mid, time.Minute},
		{2, mid, 5 * time.Minute},
		{3, mid, 30 * time.Minute},
		{5, mid, 12 * time.Hour},
		{9, mid, 12 * time.Hour},
		{1, low, 48 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.failed, tt.rnd); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.failed, got, tt.want)
		}
	}

	if got := retryDelay(1, high); got <= time.Minute || got > 72*time.Second {
		t.Errorf("upper jitter = %v, want (1m, 1m12s]", got)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"120", 2 * time.Minute},
		{"-5", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
		{"999999", 12 * time.Hour},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("Retry-After", tt.header)
		}
		if got := retryAfter(resp); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
	if retryAfter(nil) != 0 {
		t.Error("nil response should yield 0")
	}
}
