package urlutil

import (
	"net/url"
	"strings"
)

// Canonicalize maps equivalent spellings of a feed URL to one form:
//   - Scheme and host are lowercased
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//   - Fragments are removed
//   - An empty path becomes "/"
//
// Query parameters are kept; many feeds are addressed by them.
func Canonicalize(sourceUrl url.URL) url.URL {
	canonical := sourceUrl

	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	if canonical.Path == "" && canonical.Host != "" {
		canonical.Path = "/"
	}

	canonical.Fragment = ""
	canonical.RawFragment = ""

	return canonical
}

// SourceKey returns a stable key for a request source. Network URLs are
// canonicalized; file paths and commands are returned unchanged.
func SourceKey(source string) string {
	if strings.HasPrefix(source, "|") || !strings.Contains(source, "://") {
		return source
	}
	parsed, err := url.Parse(source)
	if err != nil || parsed.Host == "" {
		return source
	}
	canonical := Canonicalize(*parsed)
	return canonical.String()
}

// Root returns scheme://host/ of u.
func Root(u url.URL) url.URL {
	return url.URL{
		Scheme: u.Scheme,
		User:   u.User,
		Host:   u.Host,
		Path:   "/",
	}
}

// Dir returns u truncated after the last slash of its path, without query
// or fragment. "http://h/a/b/feed.xml" becomes "http://h/a/b/".
func Dir(u url.URL) url.URL {
	dir := Root(u)
	if idx := strings.LastIndex(u.Path, "/"); idx >= 0 {
		dir.Path = u.Path[:idx+1]
	}
	return dir
}

// lowerASCII converts ASCII characters to lowercase without allocating.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
