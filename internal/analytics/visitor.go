package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

const (
	visitorHashLen = 16
	maxMetaLength  = 500
	maxSourceLen   = 64
	defaultSource  = "careers_page"
)

// GenerateVisitorHash derives an anonymous visitor ID from the client
// address and user agent. The salt changes every UTC day, so the same
// person cannot be linked across days.
func GenerateVisitorHash(ip, userAgent string, at time.Time) string {
	h := sha256.New()
	h.Write([]byte(ip))
	h.Write([]byte(userAgent))
	h.Write([]byte("hireloop:" + at.UTC().Format(time.DateOnly)))
	return hex.EncodeToString(h.Sum(nil))[:visitorHashLen]
}

// SanitizeReferrer strips credentials, query and fragment from a referrer.
// Anything that is not an absolute URL is dropped.
func SanitizeReferrer(ref string) string {
	u, err := url.Parse(ref)
	if ref == "" || err != nil || u.Host == "" {
		return ""
	}
	u.User, u.RawQuery, u.Fragment = nil, "", ""
	return clip(u.String(), maxMetaLength)
}

// NormalizeSource lowercases utm_source. No source means the careers page.
func NormalizeSource(src string) string {
	if src = strings.ToLower(strings.TrimSpace(src)); src == "" {
		return defaultSource
	}
	return clip(src, maxSourceLen)
}

// ExtractCountryCode reads a CF-IPCountry style header. "XX" is unknown.
func ExtractCountryCode(header string) string {
	if code := strings.ToUpper(header); len(code) == 2 && code != "XX" {
		return code
	}
	return ""
}

func clip(s string, n int) string {
	return s[:min(len(s), n)]
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
