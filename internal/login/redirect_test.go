package login

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "/o/acme", want: "/o/acme"},
		{raw: "/o/acme/projects?tab=runs#top", want: "/o/acme/projects?tab=runs#top"},
		{raw: "/", want: "/"},
		{raw: "", want: "/o"},
		{raw: "o/acme", want: "/o"},
		{raw: "http://evil.com", want: "/o"},
		{raw: "https://evil.com/o/acme", want: "/o"},
		{raw: "//evil.com", want: "/o"},
		{raw: "///evil.com", want: "/o"},
		{raw: "/\\evil.com", want: "/o"},
		{raw: "/o/acme\r\nSet-Cookie: x=y", want: "/o"},
		{raw: "/o/\tacme", want: "/o"},
		{raw: "javascript:alert(1)", want: "/o"},
		{raw: " /o/acme", want: "/o"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			require.Equal(t, tt.want, SafeRedirect(tt.raw, DefaultDestination))
		})
	}
}

func TestSafeRedirect_Properties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("accepted redirects are single-slash relative paths", prop.ForAll(
		func(raw string) bool {
			got := SafeRedirect(raw, DefaultDestination)
			if got == DefaultDestination {
				return true
			}
			return got == raw &&
				strings.HasPrefix(got, "/") &&
				!strings.HasPrefix(got, "//") &&
				!strings.Contains(got, "\\")
		},
		gen.AnyString(),
	))

	properties.Property("protocol-relative redirects are discarded", prop.ForAll(
		func(host string) bool {
			return SafeRedirect("//"+host, DefaultDestination) == DefaultDestination
		},
		gen.AnyString(),
	))

	properties.Property("absolute URLs are discarded", prop.ForAll(
		func(scheme, host string) bool {
			return SafeRedirect(scheme+"://"+host+"/o", DefaultDestination) == DefaultDestination
		},
		gen.OneConstOf("http", "https", "ftp", "javascript"),
		gen.Identifier(),
	))

	properties.Property("paths that do not start with a slash are discarded", prop.ForAll(
		func(raw string) bool {
			return SafeRedirect(raw, DefaultDestination) == DefaultDestination
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}
