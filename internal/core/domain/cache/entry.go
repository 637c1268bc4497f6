package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Entry is a captured response stored under a request URL.
// Entries are never mutated after they are written.
type Entry struct {
	URL        string      `json:"url"`
	Status     int         `json:"status"`
	StatusText string      `json:"status_text"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
}

// KeyFor returns the cache key of u: scheme, host, path and query. The fragment is dropped.
func KeyFor(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	k.User = nil
	return k.String()
}

// Snapshot reads resp's body once and returns an entry holding a copy of it.
// resp.Body is replaced with a fresh reader over the same bytes so the caller can
// still hand the response on unconsumed.
func Snapshot(resp *http.Response, key string) (*Entry, error) {
	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		body = b
	}
	// the cached copy gets its own slice
	stored := make([]byte, len(body))
	copy(stored, body)
	return &Entry{
		URL:        key,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     StorableHeader(resp.Header),
		Body:       stored,
		StoredAt:   time.Now().UTC(),
	}, nil
}

// clientScopedHeaders belong to one client or one connection. The store is shared by
// every client of the server, so they are never persisted.
var clientScopedHeaders = []string{
	"Set-Cookie",
	"Set-Cookie2",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StorableHeader returns a copy of h without client-scoped headers.
func StorableHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range clientScopedHeaders {
		out.Del(k)
	}
	return out
}

// Storable reports whether a response to req may be written to the shared store.
// Responses to credentialed requests are personal and stay out of it.
func Storable(req *http.Request) bool {
	return req.Header.Get("Authorization") == ""
}

// Response builds a new response for req backed by the entry. Every call returns an
// independent body reader.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + e.StatusText,
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func statusText(resp *http.Response) string {
	if t := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); t != "" && t != resp.Status {
		return t
	}
	return http.StatusText(resp.StatusCode)
}
