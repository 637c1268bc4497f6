package cache

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

type Class int

const (
	ClassOther Class = iota
	ClassImage
)

func (c Class) String() string {
	if c == ClassImage {
		return "image"
	}
	return "other"
}

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".svg":  {},
	".webp": {},
	".gif":  {},
}

// generatedSegment marks server-rendered image paths that carry no extension.
const generatedSegment = "generated"

// Classify decides which strategy serves u.
func Classify(u *url.URL) Class {
	p := u.Path
	if _, ok := imageExtensions[strings.ToLower(path.Ext(p))]; ok {
		return ClassImage
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == generatedSegment {
			return ClassImage
		}
	}
	return ClassOther
}

// IsNavigation reports whether r loads a top-level document. Sec-Fetch-Mode is
// authoritative when present; otherwise an HTML-accepting GET counts.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	if r.Method != http.MethodGet {
		return false
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "text/html" {
			return true
		}
	}
	return false
}
