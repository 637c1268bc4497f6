package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher implements ports.Fetcher. Requests for the public origin are sent to the
// upstream that actually serves the site; any other URL is fetched as-is.
type HTTPFetcher struct {
	client   *http.Client
	public   *url.URL
	upstream *url.URL
	logger   *logrus.Logger
}

// NewHTTPFetcher creates a fetcher. timeout <= 0 leaves requests bounded only by their context.
func NewHTTPFetcher(public, upstream *url.URL, timeout time.Duration, logger *logrus.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		public:   public,
		upstream: upstream,
		logger:   logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	if cache.SameOrigin(out.URL, f.public) {
		out.URL = f.rewrite(out.URL)
		out.Host = f.upstream.Host
	}
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	resp, err := f.client.Do(out)
	if err != nil {
		if f.logger != nil {
			f.logger.WithFields(logrus.Fields{"url": out.URL.String(), "method": out.Method}).WithError(err).Debug("network fetch failed")
		}
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Redacted(), err)
	}
	return resp, nil
}

// Ping issues a HEAD request against the upstream root.
func (f *HTTPFetcher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.upstream.String(), nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return nil
}

func (f *HTTPFetcher) rewrite(u *url.URL) *url.URL {
	r := *u
	r.Scheme = f.upstream.Scheme
	r.Host = f.upstream.Host
	r.User = f.upstream.User
	if base := strings.TrimSuffix(f.upstream.Path, "/"); base != "" {
		r.Path = base + u.Path
		if u.RawPath != "" {
			r.RawPath = strings.TrimSuffix(f.upstream.EscapedPath(), "/") + u.RawPath
		}
	}
	return &r
}
