package webhook

import (
	"net/http"
	"strconv"
	"time"
)

// DefaultMaxAttempts bounds deliveries before they are exhausted.
const DefaultMaxAttempts = 5

// retrySchedule is the wait after the 1st, 2nd, ... failed attempt.
// Later failures reuse the last step.
var retrySchedule = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

// retryJitter spreads retries by up to ±20% so a recovering endpoint is
// not hit by every queued delivery at once.
const retryJitter = 0.2

// retryDelay is the wait after the given number of failed attempts.
// rnd returns a value in [0, 1).
func retryDelay(failed int, rnd func() float64) time.Duration {
	i := failed - 1
	if i < 0 {
		i = 0
	}
	if i >= len(retrySchedule) {
		i = len(retrySchedule) - 1
	}
	base := float64(retrySchedule[i])
	return time.Duration(base + base*retryJitter*(2*rnd()-1))
}

// retryAfter reads a Retry-After header in seconds form, capped at the
// longest scheduled wait. It returns 0 when absent or unparsable.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if longest := retrySchedule[len(retrySchedule)-1]; d > longest {
		return longest
	}
	return d
}
