package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// careersPrefix is the public job board. Company websites embed it, so it
// answers any origin, always without credentials.
const careersPrefix = "/api/v1/careers/"

// SecureHeaders sets the response headers every API response carries.
// HSTS is sent only when hsts is true, i.e. outside development.
func SecureHeaders(hsts bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit rejects declared oversize bodies up front and caps the rest
// while they are read.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Authorization", "Content-Type", "X-API-Key", RequestIDHeader,
	}, ", ")
	corsExposed = strings.Join([]string{
		RequestIDHeader, "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
	}, ", ")
	corsMaxAge = strconv.Itoa(600)
)

// CORS admits browser calls. Careers routes accept any origin. The rest
// of the API accepts the dashboard origins listed in allowed, which may
// use a leading "*." to admit subdomains.
func CORS(allowed []string) func(http.Handler) http.Handler {
	exact := make(map[string]bool, len(allowed))
	var suffixes []string
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimSpace(o))
		if rest, ok := strings.CutPrefix(o, "*."); ok {
			suffixes = append(suffixes, "."+rest)
			continue
		}
		exact[o] = true
	}

	originOK := func(origin string) bool {
		origin = strings.ToLower(origin)
		if exact[origin] {
			return true
		}
		_, host, ok := strings.Cut(origin, "://")
		if !ok {
			return false
		}
		for _, s := range suffixes {
			if strings.HasSuffix(host, s) && len(host) > len(s) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			switch {
			case strings.HasPrefix(r.URL.Path, careersPrefix):
				h.Set("Access-Control-Allow-Origin", "*")
			case originOK(origin):
				h.Set("Access-Control-Allow-Origin", origin)
			default:
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Expose-Headers", corsExposed)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
