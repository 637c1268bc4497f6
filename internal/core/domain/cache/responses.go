package cache

import (
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	ImageUnavailableBody   = "Image not available"
	OfflineUnavailableBody = "Offline - content not available"
)

// ImageNotFound is returned when an uncached image cannot be fetched.
func ImageNotFound(req *http.Request) *http.Response {
	return synthesize(req, http.StatusNotFound, ImageUnavailableBody)
}

// OfflineUnavailable is returned when a non-navigation request has neither network nor cache.
func OfflineUnavailable(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, OfflineUnavailableBody)
}

func synthesize(req *http.Request, status int, body string) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
