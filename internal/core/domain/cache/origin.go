package cache

import (
	"net/url"
	"strings"
)

// SameOrigin compares scheme and host (including port) case-insensitively.
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
