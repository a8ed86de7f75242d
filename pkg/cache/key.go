package cache

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response.
type Key struct {
	// Method is the HTTP method (defaults to GET)
	Method string

	// URL is the absolute request URL
	URL string
}

// String generates a deterministic cache key string.
// Format: fetch:METHOD:scheme://host/path?sorted=query
//
// Query parameters keep their raw encoding; only their order is normalized.
//
// Example:
//
//	fetch:GET:http://example.org/dictionary/search/?page=2&query=a
func (k Key) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}
	return "fetch:" + method + ":" + normalizeURL(k.URL)
}

// normalizeURL lowercases scheme and host, drops the fragment and sorts the
// query so equivalent URLs share a key. Unparseable URLs are used verbatim.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = sortQuery(u.RawQuery)
	}
	return u.String()
}

// sortQuery orders the raw query parameters by name, then by their raw text.
// Parameters are not re-encoded, so "flag" and "flag=" stay distinct.
func sortQuery(raw string) string {
	params := strings.Split(raw, "&")
	sort.SliceStable(params, func(i, j int) bool {
		ki, _, _ := strings.Cut(params[i], "=")
		kj, _, _ := strings.Cut(params[j], "=")
		if ki != kj {
			return ki < kj
		}
		return params[i] < params[j]
	})
	return strings.Join(params, "&")
}
