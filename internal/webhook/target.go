package webhook

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrInvalidScheme    = errors.New("only HTTPS allowed")
	ErrEmptyHost        = errors.New("URL must have a host")
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	ErrPrivateIP        = errors.New("private IP addresses not allowed")
	ErrInvalidPort      = errors.New("only port 443 allowed")
	ErrCredentialsInURL = errors.New("URL must not carry credentials")
)

// blockedPrefixes are networks a tenant endpoint may never resolve to.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // link-local, cloud metadata
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// TargetPolicy decides which URLs may receive deliveries.
type TargetPolicy struct {
	// AllowInsecure admits http targets on port 80, for local development.
	// Address checks still apply.
	AllowInsecure bool
	// LookupHost resolves names. Nil uses net.DefaultResolver.
	LookupHost func(ctx context.Context, host string) ([]netip.Addr, error)
}

// Check rejects targets that are not public HTTPS endpoints. A name that
// does not resolve is accepted here and fails at delivery time.
func (p TargetPolicy) Check(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return ErrInvalidURL
	}
	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && p.AllowInsecure:
	default:
		return ErrInvalidScheme
	}
	if u.User != nil {
		return ErrCredentialsInURL
	}

	host := u.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	if isLocalName(host) {
		return ErrLocalhostBlocked
	}
	if port := u.Port(); port != "" && port != "443" && !(p.AllowInsecure && port == "80") {
		return ErrInvalidPort
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return ErrPrivateIP
		}
		return nil
	}

	addrs, err := p.lookup(ctx, host)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if blockedAddr(addr) {
			return ErrPrivateIP
		}
	}
	return nil
}

func (p TargetPolicy) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if p.LookupHost != nil {
		return p.LookupHost(ctx, host)
	}
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

func isLocalName(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal")
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsLoopback() {
		return true
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// targetHost is the part of a target URL safe to log. Paths and queries
// may carry tenant tokens.
func targetHost(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "(invalid)"
	}
	return u.Host
}
