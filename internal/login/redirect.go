package login

import (
	"net/url"
	"strings"
	"unicode"
)

// DefaultDestination is where signed-in users land when no safe redirect was requested.
const DefaultDestination = "/o"

// SafeRedirect returns raw when it is a same-origin relative path and
// fallback otherwise. Absolute URLs, protocol-relative paths ("//host"),
// backslashes and control characters are all rejected.
func SafeRedirect(raw, fallback string) string {
	if !isSafePath(raw) {
		return fallback
	}
	return raw
}

func isSafePath(raw string) bool {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return false
	}
	// browsers treat "\" like "/" so "/\evil.com" would leave the origin
	if strings.ContainsRune(raw, '\\') {
		return false
	}
	if strings.IndexFunc(raw, unicode.IsControl) >= 0 {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.User == nil
}
