package httpserver

import (
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// hopHeaders never travel from a fetched response to the client.
var hopHeaders = map[string]struct{}{
	"Connection":         {},
	"Keep-Alive":         {},
	"Proxy-Authenticate": {},
	"Trailer":            {},
	"Transfer-Encoding":  {},
	"Upgrade":            {},
}

// intercept hands every non-control request to the offline cache host and streams the
// result back.
func (s *Server) intercept(c echo.Context) error {
	in := c.Request()
	req := in.Clone(in.Context())
	req.URL = s.publicURL(in)
	req.RequestURI = ""

	resp, err := s.host.Fetch(in.Context(), req)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"url": req.URL.String(), "method": req.Method}).WithError(err).Warn("upstream request failed")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "upstream unavailable")
	}
	defer resp.Body.Close()

	header := c.Response().Header()
	for k, vv := range resp.Header {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(k)]; hop {
			continue
		}
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	if in.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(c.Response(), resp.Body); err != nil && s.logger != nil {
		s.logger.WithField("url", req.URL.String()).WithError(err).Debug("client went away mid-response")
	}
	return nil
}

// publicURL gives the absolute URL a client asked for. Absolute-form request targets
// keep their own origin; path-only ones belong to the public origin.
func (s *Server) publicURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		u := *r.URL
		return &u
	}
	u := &url.URL{
		Scheme:   s.config.PublicOrigin.Scheme,
		Host:     s.config.PublicOrigin.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u
}
