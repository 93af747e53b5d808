package middleware

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Validation limits.
const (
	MinSlugLength = 3
	MaxSlugLength = 48

	// MaxURLLength bounds career page, resume and profile links.
	MaxURLLength = 2048

	// MaxWebhookURLLength is the maximum length for webhook URLs.
	MaxWebhookURLLength = 1024
)

// Validation errors.
var (
	ErrSlugTooLong        = errors.New("slug exceeds maximum length")
	ErrSlugTooShort       = errors.New("slug is too short")
	ErrSlugInvalid        = errors.New("slug may only contain lowercase letters, digits and hyphens")
	ErrSlugReserved       = errors.New("slug is reserved")
	ErrURLTooLong         = errors.New("URL exceeds maximum length")
	ErrURLInvalid         = errors.New("URL must use http or https")
	ErrURLUnsafe          = errors.New("URL uses unsafe scheme")
	ErrWebhookURLTooLong  = errors.New("webhook URL exceeds maximum length")
	ErrSlugInvalidUnicode = errors.New("slug contains non-ASCII characters")
)

// ReservedSlugs cannot be used as company slugs. Public career pages live
// under /careers/{slug} and share the namespace with system paths.
var ReservedSlugs = map[string]bool{
	"api":      true,
	"admin":    true,
	"healthz":  true,
	"readyz":   true,
	"metrics":  true,
	"static":   true,
	"assets":   true,
	"public":   true,
	"login":    true,
	"logout":   true,
	"signup":   true,
	"auth":     true,
	"oauth":    true,
	"invites":  true,
	"webhook":  true,
	"webhooks": true,
	"billing":  true,
	"support":  true,
	"careers":  true,
	"platform": true,
	"hireloop": true,
}

var validSlugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateSlug validates a company slug.
func ValidateSlug(slug string) error {
	for _, r := range slug {
		if r > unicode.MaxASCII {
			return ErrSlugInvalidUnicode
		}
	}
	if len(slug) > MaxSlugLength {
		return ErrSlugTooLong
	}
	if len(slug) < MinSlugLength {
		return ErrSlugTooShort
	}
	if !validSlugPattern.MatchString(slug) {
		return ErrSlugInvalid
	}
	if ReservedSlugs[slug] {
		return ErrSlugReserved
	}
	return nil
}

// Slugify derives a slug candidate from a company name. The result still
// needs ValidateSlug.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > MaxSlugLength {
		s = strings.TrimSuffix(s[:MaxSlugLength], "-")
	}
	return s
}

// ValidateURL validates an optional user-supplied link. Empty is valid.
func ValidateURL(url string) error {
	if url == "" {
		return nil
	}
	if len(url) > MaxURLLength {
		return ErrURLTooLong
	}

	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ErrURLInvalid
	}

	// Block dangerous schemes smuggled in after an http prefix.
	for _, scheme := range []string{"javascript:", "data:", "vbscript:", "file:"} {
		if strings.Contains(lower, scheme) {
			return ErrURLUnsafe
		}
	}
	return nil
}

// ValidateWebhookURL validates a webhook target URL length. Reachability
// rules live in webhook.TargetPolicy.Check.
func ValidateWebhookURL(url string) error {
	if len(url) > MaxWebhookURLLength {
		return ErrWebhookURLTooLong
	}
	return nil
}
