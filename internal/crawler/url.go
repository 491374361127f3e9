package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ImageExtensions lists the file extensions treated as pictures when they
// appear on a discovered link.
var ImageExtensions = []string{"jpg", "jpeg", "jfif", "pjpeg", "pjp", "png", "webp"}

// NormalizeURL standardizes a discovered URL.
// It lowercases the scheme and host, removes default ports and drops the fragment.
// The query string is kept as-is.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// ImageExtension returns the lowercase picture extension of the URL's final
// path segment, or "" when the segment does not end in a known one.
func ImageExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	for _, known := range ImageExtensions {
		if ext == known {
			return ext
		}
	}
	return ""
}

// IsImageURL reports whether the URL points at a file with a picture extension.
func IsImageURL(rawURL string) bool {
	return ImageExtension(rawURL) != ""
}
