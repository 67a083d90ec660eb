package http

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// NewBackendProxy forwards requests to the backend origin. Upstream
// Set-Cookie headers lose their Domain attribute and get Path=/ so the
// cookies bind to the proxy host.
func NewBackendProxy(origin string) (http.Handler, error) {
	upstream, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid backend origin: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("backend origin must be an absolute URL: %q", origin)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			rewriteSetCookies(resp.Header)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn().Err(err).Str("path", r.URL.Path).Str("backend", upstream.Host).Msg("Backend proxy request failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"code":"unavailable","message":"backend unavailable"}`))
		},
	}

	return proxy, nil
}

func rewriteSetCookies(h http.Header) {
	values := h.Values("Set-Cookie")
	if len(values) == 0 {
		return
	}

	h.Del("Set-Cookie")
	for _, v := range values {
		h.Add("Set-Cookie", rewriteSetCookie(v))
	}
}

func rewriteSetCookie(raw string) string {
	cookie, err := http.ParseSetCookie(raw)
	if err != nil {
		log.Debug().Err(err).Msg("Passing through unparseable Set-Cookie")
		return raw
	}

	cookie.Domain = ""
	cookie.Path = "/"
	// Raw and Unparsed would otherwise shadow the rewritten fields
	cookie.Raw = ""
	cookie.Unparsed = nil

	if s := cookie.String(); s != "" {
		return s
	}
	return raw
}

// IsProxiedPath reports whether path belongs to the backend: the /api/ tree
// and connect RPC routes ("/<package>.<Service>/<Method>").
func IsProxiedPath(path string) bool {
	if strings.HasPrefix(path, "/api/") {
		return true
	}
	service, method, ok := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return ok && method != "" && !strings.Contains(method, "/") && strings.Contains(service, ".")
}
