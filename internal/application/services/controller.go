package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/domain/lifecycle"
	"github.com/avatarctic/offline-cache/internal/core/ports"
)

// AppShellPath is the document served to offline navigations.
const AppShellPath = "/index.html"

// DefaultManifest lists the app-shell URLs cached on install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
}

// Values of the X-Cache response header.
const (
	CacheStatusHit      = "HIT"
	CacheStatusMiss     = "MISS"
	CacheStatusFallback = "FALLBACK"
	CacheStatusOffline  = "OFFLINE"
)

const (
	strategyCacheFirst   = "cache_first"
	strategyNetworkFirst = "network_first"
)

// ControllerConfig groups the deployment-time settings of one controller.
type ControllerConfig struct {
	Prefix   string
	Version  string
	Origin   *url.URL
	Manifest []string
	// FallbackOnServerError treats 5xx responses to non-image requests like a network failure.
	FallbackOnServerError bool
	// SkipWaitingOnInstall makes a successful install ask for immediate activation.
	SkipWaitingOnInstall bool
}

// Controller decides per request whether to answer from the cache store or the network,
// for one immutable version.
type Controller struct {
	cfg     ControllerConfig
	names   cache.Names
	storage ports.CacheStorage
	network ports.Fetcher
	logger  *logrus.Logger
	metrics ports.CacheMetrics

	mu          sync.Mutex
	state       lifecycle.State
	skipWaiting bool
}

func NewController(cfg ControllerConfig, storage ports.CacheStorage, network ports.Fetcher, logger *logrus.Logger, metrics ports.CacheMetrics) *Controller {
	if cfg.Prefix == "" {
		cfg.Prefix = cache.DefaultPrefix
	}
	if cfg.Manifest == nil {
		cfg.Manifest = DefaultManifest
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Controller{
		cfg:     cfg,
		names:   cache.NamesFor(cfg.Prefix, cfg.Version),
		storage: storage,
		network: network,
		logger:  logger,
		metrics: metrics,
		state:   lifecycle.StateParsed,
	}
}

func (c *Controller) Version() string    { return c.cfg.Version }
func (c *Controller) Names() cache.Names { return c.names }

func (c *Controller) State() lifecycle.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s lifecycle.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SkipWaiting records that this controller should replace the active one immediately.
func (c *Controller) SkipWaiting() {
	c.mu.Lock()
	c.skipWaiting = true
	c.mu.Unlock()
}

func (c *Controller) ShouldSkipWaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipWaiting
}

// Install creates the version's namespaces and fills the static one with the manifest.
// Either every manifest URL is cached or none is.
func (c *Controller) Install(ctx context.Context) error {
	c.setState(lifecycle.StateInstalling)
	log := c.logger.WithFields(logrus.Fields{"version": c.cfg.Version, "manifest": len(c.cfg.Manifest)})

	created, err := c.openNamespaces(ctx)
	if err != nil {
		return c.failInstall(ctx, created, err)
	}

	entries := make([]*cache.Entry, len(c.cfg.Manifest))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.cfg.Manifest {
		i, p := i, p
		g.Go(func() error {
			e, err := c.fetchManifestEntry(gctx, p)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c.failInstall(ctx, created, err)
	}

	static, err := c.storage.Open(ctx, c.names.Static)
	if err != nil {
		return c.failInstall(ctx, created, err)
	}
	for _, e := range entries {
		if err := static.Put(ctx, e); err != nil {
			return c.failInstall(ctx, created, fmt.Errorf("store %s: %w", e.URL, err))
		}
	}

	c.setState(lifecycle.StateInstalled)
	if c.cfg.SkipWaitingOnInstall {
		c.SkipWaiting()
	}
	log.Info("cache controller installed")
	return nil
}

func (c *Controller) openNamespaces(ctx context.Context) ([]string, error) {
	var created []string
	for _, name := range c.names.All() {
		exists, err := c.storage.Has(ctx, name)
		if err != nil {
			return created, fmt.Errorf("check namespace %s: %w", name, err)
		}
		if _, err := c.storage.Open(ctx, name); err != nil {
			return created, err
		}
		if !exists {
			created = append(created, name)
		}
	}
	return created, nil
}

func (c *Controller) fetchManifestEntry(ctx context.Context, p string) (*cache.Entry, error) {
	u, err := c.resolve(p)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", p, err)
	}
	resp, err := c.network.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", p, resp.StatusCode)
	}
	return cache.Snapshot(resp, cache.KeyFor(u))
}

// failInstall removes namespaces this attempt created so the store looks as it did before.
func (c *Controller) failInstall(ctx context.Context, created []string, cause error) error {
	for _, name := range created {
		if _, err := c.storage.Delete(ctx, name); err != nil {
			c.logger.WithField("namespace", name).WithError(err).Warn("failed to remove namespace after install failure")
		}
	}
	c.setState(lifecycle.StateRedundant)
	c.logger.WithField("version", c.cfg.Version).WithError(cause).Error("cache controller install failed")
	return fmt.Errorf("%w: %w", cache.ErrInstallFailed, cause)
}

// Activate deletes every namespace that carries the application prefix but belongs to
// another version. It returns the deleted names.
func (c *Controller) Activate(ctx context.Context) ([]string, error) {
	c.setState(lifecycle.StateActivating)
	defer c.setState(lifecycle.StateActivated)

	names, err := c.storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache namespaces: %w", err)
	}
	var deleted []string
	var errs []error
	for _, n := range names {
		if !cache.IsStale(c.cfg.Prefix, c.names, n) {
			continue
		}
		ok, err := c.storage.Delete(ctx, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete namespace %s: %w", n, err))
			continue
		}
		if ok {
			deleted = append(deleted, n)
		}
	}
	c.metrics.ObserveNamespacesDeleted(len(deleted))
	c.logger.WithFields(logrus.Fields{"version": c.cfg.Version, "deleted": deleted}).Info("cache controller activated")
	return deleted, errors.Join(errs...)
}

// resume marks a controller recovered from persisted namespaces as active without
// running install or cleanup.
func (c *Controller) resume() {
	c.setState(lifecycle.StateActivated)
}

func (c *Controller) markRedundant() {
	c.setState(lifecycle.StateRedundant)
}

// HandleMessage applies a command object. Unknown types are ignored.
func (c *Controller) HandleMessage(_ context.Context, msg cache.Message) error {
	switch msg.Type {
	case cache.MessageSkipWaiting:
		c.SkipWaiting()
	default:
		c.logger.WithFields(logrus.Fields{"version": c.cfg.Version, "type": msg.Type}).Debug("ignoring unknown controller message")
	}
	return nil
}

// Intercepts reports whether req is handled by the cache policies. Requests to other
// origins and non-GET requests go straight to the network.
func (c *Controller) Intercepts(req *http.Request) bool {
	return req.Method == http.MethodGet && cache.SameOrigin(req.URL, c.cfg.Origin)
}

// Fetch answers req. Only requests that are not intercepted can return an error, and
// only when their network fetch fails.
func (c *Controller) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !c.Intercepts(req) {
		return c.network.Fetch(ctx, req)
	}
	key := cache.KeyFor(req.URL)
	if cache.Classify(req.URL) == cache.ClassImage {
		return c.cacheFirst(ctx, req, key), nil
	}
	return c.networkFirst(ctx, req, key), nil
}

func (c *Controller) cacheFirst(ctx context.Context, req *http.Request, key string) *http.Response {
	if e, ok := c.lookup(ctx, key); ok {
		c.metrics.ObserveResponse(strategyCacheFirst, "hit")
		return c.mark(e.Response(req), CacheStatusHit)
	}
	resp, err := c.network.Fetch(ctx, req)
	if err != nil {
		c.logger.WithField("url", key).WithError(err).Debug("image unavailable")
		c.metrics.ObserveResponse(strategyCacheFirst, "unavailable")
		return c.mark(cache.ImageNotFound(req), CacheStatusOffline)
	}
	if resp.StatusCode == http.StatusOK && cache.Storable(req) {
		c.put(ctx, c.names.Images, key, resp)
	}
	c.metrics.ObserveResponse(strategyCacheFirst, "network")
	return c.mark(resp, CacheStatusMiss)
}

func (c *Controller) networkFirst(ctx context.Context, req *http.Request, key string) *http.Response {
	resp, err := c.network.Fetch(ctx, req)
	if err == nil && !c.fallsBack(resp) {
		if resp.StatusCode == http.StatusOK && cache.Storable(req) {
			c.put(ctx, c.names.Runtime, key, resp)
		}
		c.metrics.ObserveResponse(strategyNetworkFirst, "network")
		return c.mark(resp, CacheStatusMiss)
	}
	if err != nil {
		c.logger.WithField("url", key).WithError(err).Debug("network failed, trying cache")
	}

	if e, ok := c.lookup(ctx, key); ok {
		discard(resp)
		c.metrics.ObserveResponse(strategyNetworkFirst, "fallback")
		return c.mark(e.Response(req), CacheStatusFallback)
	}
	if resp != nil {
		// server error and nothing cached: the live response is still the best answer
		c.metrics.ObserveResponse(strategyNetworkFirst, "network")
		return c.mark(resp, CacheStatusMiss)
	}
	if cache.IsNavigation(req) {
		if shell, ok := c.appShell(ctx); ok {
			c.metrics.ObserveResponse(strategyNetworkFirst, "app_shell")
			return c.mark(shell.Response(req), CacheStatusFallback)
		}
	}
	c.metrics.ObserveResponse(strategyNetworkFirst, "unavailable")
	return c.mark(cache.OfflineUnavailable(req), CacheStatusOffline)
}

func (c *Controller) fallsBack(resp *http.Response) bool {
	return c.cfg.FallbackOnServerError && resp.StatusCode >= http.StatusInternalServerError
}

func (c *Controller) appShell(ctx context.Context) (*cache.Entry, bool) {
	u, err := c.resolve(AppShellPath)
	if err != nil {
		return nil, false
	}
	return c.lookup(ctx, cache.KeyFor(u))
}

// lookup searches every namespace. Store errors count as a miss.
func (c *Controller) lookup(ctx context.Context, key string) (*cache.Entry, bool) {
	e, ok, err := c.storage.Match(ctx, key)
	if err != nil {
		c.logger.WithField("url", key).WithError(err).Warn("cache lookup failed")
		c.metrics.ObserveLookup("all", "error")
		return nil, false
	}
	if !ok {
		c.metrics.ObserveLookup("all", "miss")
		return nil, false
	}
	c.metrics.ObserveLookup("all", "hit")
	return e, true
}

// put stores a copy of resp under key, minus client-scoped headers. resp keeps an
// unread body and its full headers for the caller. Failures are logged and otherwise ignored.
func (c *Controller) put(ctx context.Context, namespace, key string, resp *http.Response) {
	entry, err := cache.Snapshot(resp, key)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"namespace": namespace, "url": key}).WithError(err).Warn("failed to copy response for cache")
		c.metrics.ObserveWrite(namespace, "error")
		return
	}
	// the write outlives a caller that disconnects
	ctx = context.WithoutCancel(ctx)
	ns, err := c.storage.Open(ctx, namespace)
	if err == nil {
		err = ns.Put(ctx, entry)
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{"namespace": namespace, "url": key}).WithError(err).Warn("cache write failed")
		c.metrics.ObserveWrite(namespace, "error")
		return
	}
	c.metrics.ObserveWrite(namespace, "ok")
}

func (c *Controller) mark(resp *http.Response, status string) *http.Response {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set("X-Cache", status)
	resp.Header.Set("X-Cache-Version", c.cfg.Version)
	return resp
}

func (c *Controller) resolve(p string) (*url.URL, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("parse manifest path %q: %w", p, err)
	}
	return c.cfg.Origin.ResolveReference(ref), nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

type noopMetrics struct{}

func (noopMetrics) ObserveLookup(string, string)   {}
func (noopMetrics) ObserveWrite(string, string)    {}
func (noopMetrics) ObserveResponse(string, string) {}
func (noopMetrics) ObserveNamespacesDeleted(int)   {}
