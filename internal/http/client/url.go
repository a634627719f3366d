package client

import (
	"net/url"
	"strings"
)

const redacted = "REDACTED"

var sensitiveQueryKeys = []string{"token", "key", "secret", "password", "signature", "auth"}

// sanitizeURL drops user info and redacts secret-looking query values so the
// URL can be logged and attached to errors.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	out := *u
	out.User = nil
	if out.RawQuery != "" {
		q := out.Query()
		for key := range q {
			if isSensitiveKey(key) {
				q.Set(key, redacted)
			}
		}
		out.RawQuery = q.Encode()
	}
	return out.String()
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveQueryKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// resolve joins path onto base. The base query is kept and the reference
// query is appended to it. Absolute paths are kept under the base path:
// base https://svc/api plus /people gives https://svc/api/people.
func resolve(base *url.URL, path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}

	out := *base
	if ref.Path != "" {
		escaped := strings.TrimRight(base.EscapedPath(), "/") + "/" + strings.TrimLeft(ref.EscapedPath(), "/")
		unescaped, err := url.PathUnescape(escaped)
		if err != nil {
			return nil, err
		}
		out.Path = unescaped
		out.RawPath = escaped
	}
	out.RawQuery = mergeQuery(base.RawQuery, ref.RawQuery)
	out.Fragment = ""
	return &out, nil
}

func mergeQuery(base, ref string) string {
	switch {
	case base == "":
		return ref
	case ref == "":
		return base
	default:
		return base + "&" + ref
	}
}
