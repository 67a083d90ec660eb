// Package client builds the outbound HTTP clients used to call peer services.
package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingHTTPClient returns an HTTP client that honours Cache-Control on
// responses. Entries live on disk under cacheDir, or in memory when cacheDir
// is empty. timeout bounds each request including retries of the body read.
func NewCachingHTTPClient(cacheDir string, timeout time.Duration) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.MarkCachedResponses = true

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// FromCache reports whether the response was served from the cache.
func FromCache(resp *http.Response) bool {
	return resp.Header.Get(httpcache.XFromCache) != ""
}
