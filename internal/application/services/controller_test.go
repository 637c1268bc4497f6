package services_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-cache/internal/application/services"
	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/ports"
	"github.com/avatarctic/offline-cache/internal/infrastructure/memory"
	"github.com/avatarctic/offline-cache/internal/testutil"
)

const origin = "https://energy.example"

func originURL() *url.URL {
	u, _ := url.Parse(origin)
	return u
}

// onlineNetwork serves the default manifest.
func onlineNetwork() *testutil.Network {
	return testutil.NewNetwork().
		Serve(origin+"/", 200, "<html>root</html>").
		Serve(origin+"/index.html", 200, "<html>shell</html>").
		Serve(origin+"/manifest.json", 200, `{"name":"Energy Monitor"}`).
		Serve(origin+"/icons/icon-192.png", 200, "png-192").
		Serve(origin+"/icons/icon-512.png", 200, "png-512")
}

func newController(version string, storage ports.CacheStorage, network ports.Fetcher) *services.Controller {
	return services.NewController(services.ControllerConfig{
		Version:              version,
		Origin:               originURL(),
		SkipWaitingOnInstall: true,
	}, storage, network, nil, nil)
}

func get(t *testing.T, c *services.Controller, target string, header ...string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RequestURI = ""
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, string(b)
}

func TestInstall_PopulatesStaticNamespace(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	c := newController("v1", storage, onlineNetwork())

	require.NoError(t, c.Install(ctx))
	require.True(t, c.ShouldSkipWaiting())

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"energy-monitor-static-v1", "energy-monitor-runtime-v1", "energy-monitor-images-v1"}, names)

	static, err := storage.Open(ctx, "energy-monitor-static-v1")
	require.NoError(t, err)
	keys, err := static.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, len(services.DefaultManifest))
	require.Contains(t, keys, origin+"/index.html")
}

func TestInstall_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	network := testutil.NewNetwork().
		Serve(origin+"/", 200, "root").
		Serve(origin+"/index.html", 200, "shell").
		Serve(origin+"/manifest.json", 404, "missing").
		Serve(origin+"/icons/icon-192.png", 200, "png").
		Serve(origin+"/icons/icon-512.png", 200, "png")
	c := newController("v1", storage, network)

	err := c.Install(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, cache.ErrInstallFailed)
	require.False(t, c.ShouldSkipWaiting())

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestInstall_TransportFailureAborts(t *testing.T) {
	network := onlineNetwork()
	network.SetOffline(true)
	c := newController("v1", memory.NewCacheStorage(), network)
	err := c.Install(context.Background())
	require.ErrorIs(t, err, cache.ErrInstallFailed)
	require.ErrorIs(t, err, testutil.ErrOffline)
}

func TestInstall_KeepsNamespacesThatAlreadyExisted(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	_, _ = storage.Open(ctx, "energy-monitor-runtime-v1")
	network := onlineNetwork()
	network.SetOffline(true)

	require.Error(t, newController("v1", storage, network).Install(ctx))
	names, _ := storage.Names(ctx)
	require.Equal(t, []string{"energy-monitor-runtime-v1"}, names)
}

func TestActivate_DeletesOnlyStaleNamespaces(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	for _, n := range []string{
		"energy-monitor-static-v1", "energy-monitor-runtime-v1", "energy-monitor-images-v1",
		"energy-monitor-static-v2", "energy-monitor-runtime-v2", "energy-monitor-images-v2",
		"third-party-cache",
	} {
		_, err := storage.Open(ctx, n)
		require.NoError(t, err)
	}

	deleted, err := newController("v2", storage, onlineNetwork()).Activate(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"energy-monitor-static-v1", "energy-monitor-runtime-v1", "energy-monitor-images-v1"}, deleted)

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"energy-monitor-static-v2", "energy-monitor-runtime-v2", "energy-monitor-images-v2", "third-party-cache"}, names)
}

func TestActivate_ReportsDeleteErrors(t *testing.T) {
	storage := &testutil.CacheStorageMock{
		NamesFn: func(ctx context.Context) ([]string, error) {
			return []string{"energy-monitor-static-v1", "energy-monitor-static-v2"}, nil
		},
		DeleteFn: func(ctx context.Context, name string) (bool, error) { return false, errors.New("boom") },
	}
	c := newController("v2", storage, onlineNetwork())
	_, err := c.Activate(context.Background())
	require.Error(t, err)
	require.Equal(t, "activated", string(c.State()))
}

func TestFetch_ImageHitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	images, _ := storage.Open(ctx, "energy-monitor-images-v1")
	require.NoError(t, images.Put(ctx, &cache.Entry{URL: origin + "/img/meter.png", Status: 200, StatusText: "OK", Body: []byte{0x89, 'P', 'N', 'G'}}))
	network := testutil.NewNetwork().Serve(origin+"/img/meter.png", 200, "fresh")
	c := newController("v1", storage, network)

	resp, body := get(t, c, origin+"/img/meter.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string([]byte{0x89, 'P', 'N', 'G'}), body)
	require.Equal(t, services.CacheStatusHit, resp.Header.Get("X-Cache"))
	require.Empty(t, network.Calls())
}

func TestFetch_ImageMissIsCachedForNextRequest(t *testing.T) {
	storage := memory.NewCacheStorage()
	network := testutil.NewNetwork().Serve(origin+"/generated/usage-chart", 200, "chart")
	c := newController("v1", storage, network)

	resp, body := get(t, c, origin+"/generated/usage-chart")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "chart", body)
	require.Equal(t, services.CacheStatusMiss, resp.Header.Get("X-Cache"))

	resp, body = get(t, c, origin+"/generated/usage-chart")
	require.Equal(t, "chart", body)
	require.Equal(t, services.CacheStatusHit, resp.Header.Get("X-Cache"))
	require.Equal(t, 1, network.CallCount(origin+"/generated/usage-chart"))

	images, _ := storage.Open(context.Background(), "energy-monitor-images-v1")
	_, ok, _ := images.Match(context.Background(), origin+"/generated/usage-chart")
	require.True(t, ok)
}

func TestFetch_ImageNon200NotCached(t *testing.T) {
	storage := memory.NewCacheStorage()
	network := testutil.NewNetwork().Serve(origin+"/img/missing.PNG", 404, "nope")
	c := newController("v1", storage, network)

	resp, _ := get(t, c, origin+"/img/missing.PNG")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_, _ = get(t, c, origin+"/img/missing.PNG")
	require.Equal(t, 2, network.CallCount(origin+"/img/missing.PNG"))
}

func TestFetch_ImageOfflineMissIs404(t *testing.T) {
	c := newController("v1", memory.NewCacheStorage(), testutil.NewNetwork())

	resp, body := get(t, c, origin+"/img/solar.webp")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "404 Not Found", resp.Status)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	require.Equal(t, cache.ImageUnavailableBody, body)
}

func TestFetch_NetworkFirstRefreshesRuntime(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	runtime, _ := storage.Open(ctx, "energy-monitor-runtime-v1")
	require.NoError(t, runtime.Put(ctx, &cache.Entry{URL: origin + "/pricing", Status: 200, Body: []byte("old")}))
	network := testutil.NewNetwork().Serve(origin+"/pricing", 200, "new")
	c := newController("v1", storage, network)

	resp, body := get(t, c, origin+"/pricing")
	require.Equal(t, "new", body)
	require.Equal(t, services.CacheStatusMiss, resp.Header.Get("X-Cache"))

	e, ok, err := runtime.Match(ctx, origin+"/pricing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", string(e.Body))
}

func TestFetch_NetworkFirstReturnsLiveErrorsWithoutFallback(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	runtime, _ := storage.Open(ctx, "energy-monitor-runtime-v1")
	require.NoError(t, runtime.Put(ctx, &cache.Entry{URL: origin + "/support", Status: 200, Body: []byte("cached")}))
	network := testutil.NewNetwork().Serve(origin+"/support", 500, "boom")
	c := newController("v1", storage, network)

	resp, body := get(t, c, origin+"/support")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "boom", body)

	e, _, _ := runtime.Match(ctx, origin+"/support")
	require.Equal(t, "cached", string(e.Body))
}

func TestFetch_FallbackOnServerErrorOptIn(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	runtime, _ := storage.Open(ctx, "energy-monitor-runtime-v1")
	require.NoError(t, runtime.Put(ctx, &cache.Entry{URL: origin + "/support", Status: 200, Body: []byte("cached")}))
	network := testutil.NewNetwork().
		Serve(origin+"/support", 502, "bad gateway").
		Serve(origin+"/faq", 503, "down")
	c := services.NewController(services.ControllerConfig{
		Version:               "v1",
		Origin:                originURL(),
		FallbackOnServerError: true,
	}, storage, network, nil, nil)

	resp, body := get(t, c, origin+"/support")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "cached", body)
	require.Equal(t, services.CacheStatusFallback, resp.Header.Get("X-Cache"))

	resp, body = get(t, c, origin+"/faq")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "down", body)
}

func TestFetch_OfflineFallsBackToAnyNamespace(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	c := newController("v1", storage, onlineNetwork())
	require.NoError(t, c.Install(ctx))

	offline := testutil.NewNetwork()
	c = newController("v1", storage, offline)
	resp, body := get(t, c, origin+"/manifest.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"name":"Energy Monitor"}`, body)
	require.Equal(t, services.CacheStatusFallback, resp.Header.Get("X-Cache"))
}

func TestFetch_OfflineNavigationGetsAppShell(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	require.NoError(t, newController("v1", storage, onlineNetwork()).Install(ctx))

	c := newController("v1", storage, testutil.NewNetwork())
	resp, body := get(t, c, origin+"/dashboard/usage", "Sec-Fetch-Mode", "navigate")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>shell</html>", body)

	resp, body = get(t, c, origin+"/dashboard/usage", "Accept", "text/html,application/xhtml+xml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>shell</html>", body)
}

func TestFetch_OfflineSubresourceIs503(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	require.NoError(t, newController("v1", storage, onlineNetwork()).Install(ctx))

	c := newController("v1", storage, testutil.NewNetwork())
	resp, body := get(t, c, origin+"/api/readings.json", "Sec-Fetch-Mode", "cors")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	require.Equal(t, cache.OfflineUnavailableBody, body)
	require.Equal(t, services.CacheStatusOffline, resp.Header.Get("X-Cache"))
}

func TestFetch_CrossOriginIsNotIntercepted(t *testing.T) {
	var lookups, opens int
	storage := &testutil.CacheStorageMock{
		MatchFn: func(ctx context.Context, key string) (*cache.Entry, bool, error) {
			lookups++
			return nil, false, nil
		},
		OpenFn: func(ctx context.Context, name string) (ports.CacheNamespace, error) {
			opens++
			return &testutil.CacheNamespaceMock{NameValue: name}, nil
		},
	}
	network := testutil.NewNetwork().Serve("https://api.weather.test/forecast.png", 200, "sunny")
	c := newController("v1", storage, network)

	req := httptest.NewRequest(http.MethodGet, "https://api.weather.test/forecast.png", nil)
	resp, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Empty(t, resp.Header.Get("X-Cache"))
	require.Zero(t, lookups)
	require.Zero(t, opens)

	offline := newController("v1", storage, testutil.NewNetwork())
	_, err = offline.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "https://api.weather.test/forecast", nil))
	require.ErrorIs(t, err, testutil.ErrOffline)
}

func TestFetch_CacheWriteFailureStillReturnsResponse(t *testing.T) {
	storage := &testutil.CacheStorageMock{
		OpenFn: func(ctx context.Context, name string) (ports.CacheNamespace, error) {
			return &testutil.CacheNamespaceMock{NameValue: name, PutFn: func(ctx context.Context, e *cache.Entry) error {
				return errors.New("disk full")
			}}, nil
		},
	}
	network := testutil.NewNetwork().Serve(origin+"/about", 200, "about us")
	c := newController("v1", storage, network)

	resp, body := get(t, c, origin+"/about")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "about us", body)
}

func TestFetch_CachedResponseIsIndependentOfReturnedBody(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	network := testutil.NewNetwork().Serve(origin+"/tariffs", 200, "tariff table")
	c := newController("v1", storage, network)

	_, body := get(t, c, origin+"/tariffs")
	require.Equal(t, "tariff table", body)
	e, ok, err := storage.Match(ctx, origin+"/tariffs")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tariff table", string(e.Body))
}

func TestHandleMessage(t *testing.T) {
	c := services.NewController(services.ControllerConfig{Version: "v2", Origin: originURL()}, memory.NewCacheStorage(), testutil.NewNetwork(), nil, nil)
	require.False(t, c.ShouldSkipWaiting())
	require.NoError(t, c.HandleMessage(context.Background(), cache.Message{Type: "RELOAD"}))
	require.False(t, c.ShouldSkipWaiting())
	require.NoError(t, c.HandleMessage(context.Background(), cache.Message{Type: cache.MessageSkipWaiting}))
	require.True(t, c.ShouldSkipWaiting())
}

func TestCachedImageDoesNotReplaySetCookie(t *testing.T) {
	network := testutil.NewNetwork().ServeRoute(origin+"/avatars/me.png", testutil.Route{
		Status:      200,
		Body:        "png-bytes",
		ContentType: "image/png",
		Header:      http.Header{"Set-Cookie": []string{"session=alice"}, "Cache-Control": []string{"max-age=60"}},
	})
	c := newController("v1", memory.NewCacheStorage(), network)

	first, _ := get(t, c, origin+"/avatars/me.png")
	require.Equal(t, services.CacheStatusMiss, first.Header.Get("X-Cache"))
	require.Equal(t, "session=alice", first.Header.Get("Set-Cookie"))

	second, body := get(t, c, origin+"/avatars/me.png")
	require.Equal(t, services.CacheStatusHit, second.Header.Get("X-Cache"))
	require.Equal(t, "png-bytes", body)
	require.Empty(t, second.Header.Values("Set-Cookie"))
	require.Equal(t, "max-age=60", second.Header.Get("Cache-Control"))
}

func TestAuthorizedResponsesAreNotStored(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewCacheStorage()
	network := testutil.NewNetwork().
		Serve(origin+"/api/account", 200, `{"owner":"alice"}`).
		Serve(origin+"/avatars/alice.png", 200, "alice-png")
	c := newController("v1", storage, network)

	resp, body := get(t, c, origin+"/api/account", "Authorization", "Bearer alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"owner":"alice"}`, body)
	_, _ = get(t, c, origin+"/avatars/alice.png", "Authorization", "Bearer alice")

	for _, key := range []string{origin + "/api/account", origin + "/avatars/alice.png"} {
		_, ok, err := storage.Match(ctx, key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}

	network.SetOffline(true)
	resp, _ = get(t, c, origin+"/api/account")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
