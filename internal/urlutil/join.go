package urlutil

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// JoinPath safely joins URL paths, handling trailing and leading slashes
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	allPaths := append([]string{u.Path}, paths...)
	u.Path = path.Join(allPaths...)

	// Preserve trailing slash if the last path component had one
	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") {
		u.Path += "/"
	}

	return u.String(), nil
}

// MustJoinPath is like JoinPath but panics on error (for known-good URLs)
func MustJoinPath(base string, paths ...string) string {
	result, err := JoinPath(base, paths...)
	if err != nil {
		panic(err)
	}
	return result
}

// RequestOrigin reconstructs the scheme://host origin the client used to
// reach this server, honoring X-Forwarded-Proto set by TLS-terminating
// proxies.
func RequestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
