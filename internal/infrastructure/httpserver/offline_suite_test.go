package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/suite"

	"github.com/avatarctic/offline-cache/internal/application/services"
	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/infrastructure/codec"
	"github.com/avatarctic/offline-cache/internal/infrastructure/httpserver"
	"github.com/avatarctic/offline-cache/internal/infrastructure/network"
	"github.com/avatarctic/offline-cache/internal/infrastructure/redis"
)

// OfflineSuite drives the whole stack: echo front server, host, Redis-backed store and
// a real upstream that can be taken down.
type OfflineSuite struct {
	suite.Suite
	upstream *httptest.Server
	client   *goredis.Client
	codec    *codec.EntryCodec
	host     *services.Host
	server   *httpserver.Server
}

func (s *OfflineSuite) SetupTest() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/index.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>energy monitor</html>"))
		case "/manifest.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"Energy Monitor"}`))
		case "/icons/icon-192.png", "/icons/icon-512.png", "/charts/generated/today":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG" + r.URL.Path))
		case "/api/usage":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"kwh":12.5}`))
		default:
			http.NotFound(w, r)
		}
	})
	s.upstream = httptest.NewServer(mux)

	mr := miniredis.RunT(s.T())
	s.client = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	var err error
	s.codec, err = codec.NewEntryCodec(16)
	s.Require().NoError(err)

	public, _ := url.Parse(origin)
	upstreamURL, _ := url.Parse(s.upstream.URL)
	fetcher := network.NewHTTPFetcher(public, upstreamURL, 0, nil)
	storage := redis.NewRedisCacheStorage(s.client, "suite", s.codec)

	s.host = services.NewHost(services.HostConfig{Origin: public, SkipWaitingOnInstall: true}, storage, fetcher, nil, nil)
	s.server = newServer(s.T(), s.host, secret)
}

func (s *OfflineSuite) TearDownTest() {
	s.upstream.Close()
	_ = s.client.Close()
	s.codec.Close()
}

func (s *OfflineSuite) get(path string) *httptest.ResponseRecorder {
	return serve(s.server, httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *OfflineSuite) TestInstallThenServeOffline() {
	ctx := context.Background()
	s.Require().NoError(s.host.Register(ctx, "v1"))

	rec := s.get("/api/usage")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Equal(services.CacheStatusMiss, rec.Header().Get("X-Cache"))

	rec = s.get("/charts/generated/today")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Equal(services.CacheStatusMiss, rec.Header().Get("X-Cache"))

	s.upstream.Close()

	rec = s.get("/api/usage")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Equal(`{"kwh":12.5}`, rec.Body.String())
	s.Require().Equal(services.CacheStatusFallback, rec.Header().Get("X-Cache"))

	rec = s.get("/charts/generated/today")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Equal(services.CacheStatusHit, rec.Header().Get("X-Cache"))
	s.Require().Equal("\x89PNG/charts/generated/today", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec = serve(s.server, req)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Equal("<html>energy monitor</html>", rec.Body.String())

	rec = s.get("/api/unknown")
	s.Require().Equal(http.StatusServiceUnavailable, rec.Code)
	s.Require().Equal(cache.OfflineUnavailableBody, rec.Body.String())
}

func (s *OfflineSuite) TestUpgradePrunesOldVersion() {
	ctx := context.Background()
	s.Require().NoError(s.host.Register(ctx, "v1"))
	s.Require().NoError(s.host.Register(ctx, "v2"))

	names, err := s.host.Namespaces(ctx)
	s.Require().NoError(err)
	s.Require().ElementsMatch([]string{
		"energy-monitor-static-v2",
		"energy-monitor-runtime-v2",
		"energy-monitor-images-v2",
	}, names)
}

func (s *OfflineSuite) TestFailedUpgradeKeepsServing() {
	ctx := context.Background()
	s.Require().NoError(s.host.Register(ctx, "v1"))
	s.upstream.Close()

	err := s.host.Register(ctx, "v2")
	s.Require().True(services.IsInstallFailure(err))
	s.Require().Equal("v1", s.host.Status().ActiveVersion)

	rec := s.get("/manifest.json")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Equal("v1", rec.Header().Get("X-Cache-Version"))
}

func TestOfflineSuite(t *testing.T) {
	suite.Run(t, new(OfflineSuite))
}
