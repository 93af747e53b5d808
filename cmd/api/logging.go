package main

import (
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// newLogger builds the process logger. LOG_FORMAT=text switches to the
// human readable handler; anything else logs JSON.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

var passwordParam = regexp.MustCompile(`(?i)password=\S+`)

// withoutPassword drops the password from a connection URL, keeping the
// user name so operators can still tell which role failed.
func withoutPassword(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	if u.User != nil {
		name := u.User.Username()
		if name == "" {
			name = "redacted"
		}
		u.User = url.User(name)
	}
	return u.String()
}

// scrubber removes connection secrets from error text before it is logged.
type scrubber []string

func (s scrubber) scrub(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, dsn := range s {
		if dsn != "" {
			msg = strings.ReplaceAll(msg, dsn, withoutPassword(dsn))
		}
	}
	return passwordParam.ReplaceAllString(msg, "password=redacted")
}
