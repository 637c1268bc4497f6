package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/domain/lifecycle"
	"github.com/avatarctic/offline-cache/internal/core/ports"
)

// HostConfig is shared by every controller the host creates.
type HostConfig struct {
	Prefix                string
	Origin                *url.URL
	Manifest              []string
	FallbackOnServerError bool
	SkipWaitingOnInstall  bool
}

// Host owns the controller lifecycle: at most one active and one waiting controller,
// plus the set of open client contexts.
type Host struct {
	cfg     HostConfig
	storage ports.CacheStorage
	network ports.Fetcher
	logger  *logrus.Logger
	metrics ports.CacheMetrics

	installs singleflight.Group

	mu      sync.Mutex
	active  *Controller
	waiting *Controller
	clients map[uuid.UUID]*lifecycle.Client
}

func NewHost(cfg HostConfig, storage ports.CacheStorage, network ports.Fetcher, logger *logrus.Logger, metrics ports.CacheMetrics) *Host {
	if cfg.Prefix == "" {
		cfg.Prefix = cache.DefaultPrefix
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Host{
		cfg:     cfg,
		storage: storage,
		network: network,
		logger:  logger,
		metrics: metrics,
		clients: make(map[uuid.UUID]*lifecycle.Client),
	}
}

func (h *Host) newController(version string) *Controller {
	return NewController(ControllerConfig{
		Prefix:                h.cfg.Prefix,
		Version:               version,
		Origin:                h.cfg.Origin,
		Manifest:              h.cfg.Manifest,
		FallbackOnServerError: h.cfg.FallbackOnServerError,
		SkipWaitingOnInstall:  h.cfg.SkipWaitingOnInstall,
	}, h.storage, h.network, h.logger, h.metrics)
}

// Register installs a controller for version. Concurrent calls for one version share a
// single install. On success the controller waits, or activates right away when it asked
// to skip waiting, when nothing is active, or when no client is open. On failure the
// previously active controller keeps serving.
func (h *Host) Register(ctx context.Context, version string) error {
	_, err, _ := h.installs.Do(version, func() (any, error) {
		return nil, h.register(ctx, version)
	})
	return err
}

func (h *Host) register(ctx context.Context, version string) error {
	h.mu.Lock()
	if h.active != nil && h.active.Version() == version {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	ctrl := h.newController(version)
	if err := ctrl.Install(ctx); err != nil {
		h.mu.Lock()
		noActive := h.active == nil
		h.mu.Unlock()
		if noActive {
			if rerr := h.restorePrevious(ctx, version); rerr != nil {
				h.logger.WithError(rerr).Warn("no previous cache controller to fall back to")
			}
		}
		return err
	}

	h.mu.Lock()
	if h.waiting != nil {
		h.waiting.markRedundant()
	}
	h.waiting = ctrl
	promote := h.active == nil || ctrl.ShouldSkipWaiting() || len(h.clients) == 0
	h.mu.Unlock()

	if !promote {
		h.logger.WithField("version", version).Info("cache controller installed and waiting")
		return nil
	}
	return h.activateWaiting(ctx)
}

// activateWaiting promotes the waiting controller, prunes stale namespaces and claims
// every open client. Cleanup errors are returned but do not undo the promotion.
func (h *Host) activateWaiting(ctx context.Context) error {
	h.mu.Lock()
	next := h.waiting
	if next == nil {
		h.mu.Unlock()
		return nil
	}
	h.waiting = nil
	h.mu.Unlock()

	_, err := next.Activate(ctx)

	h.mu.Lock()
	prev := h.active
	h.active = next
	for _, c := range h.clients {
		c.ControllerVersion = next.Version()
	}
	claimed := len(h.clients)
	h.mu.Unlock()

	if prev != nil {
		prev.markRedundant()
	}
	h.logger.WithFields(logrus.Fields{"version": next.Version(), "claimed_clients": claimed}).Info("cache controller took control")
	if err != nil {
		return fmt.Errorf("activate %s: %w", next.Version(), err)
	}
	return nil
}

// restorePrevious activates, without install or cleanup, a version that survives in the
// store. The version that just failed wins when its static namespace is still there:
// a failed install removes only the namespaces it created, so a surviving one comes
// from an earlier successful install. Otherwise the newest other version is used.
func (h *Host) restorePrevious(ctx context.Context, failed string) error {
	names, err := h.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list cache namespaces: %w", err)
	}
	previous := ""
	for _, n := range names {
		purpose, v, ok := cache.ParseName(h.cfg.Prefix, n)
		if !ok || purpose != cache.PurposeStatic {
			continue
		}
		if v == failed {
			previous = v
			break
		}
		previous = v
	}
	if previous == "" {
		return cache.ErrNoActiveController
	}
	ctrl := h.newController(previous)
	ctrl.resume()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active != nil {
		return nil
	}
	h.active = ctrl
	for _, c := range h.clients {
		c.ControllerVersion = previous
	}
	h.logger.WithFields(logrus.Fields{"version": previous, "failed_version": failed}).Warn("serving persisted cache version")
	return nil
}

// Fetch routes req through the active controller, or straight to the network when
// there is none.
func (h *Host) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	h.mu.Lock()
	active := h.active
	h.mu.Unlock()
	if active == nil {
		return h.network.Fetch(ctx, req)
	}
	return active.Fetch(ctx, req)
}

// PostMessage delivers msg to the waiting controller, or to the active one when nothing
// is waiting. A skip-waiting request promotes the waiting controller immediately;
// unknown types are dropped.
func (h *Host) PostMessage(ctx context.Context, msg cache.Message) error {
	h.mu.Lock()
	target := h.waiting
	if target == nil {
		target = h.active
	}
	h.mu.Unlock()
	if target == nil {
		return cache.ErrNoActiveController
	}
	if err := target.HandleMessage(ctx, msg); err != nil {
		return err
	}
	if target.ShouldSkipWaiting() {
		return h.activateWaiting(ctx)
	}
	return nil
}

func (h *Host) OpenClient() lifecycle.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &lifecycle.Client{ID: uuid.New(), OpenedAt: time.Now().UTC()}
	if h.active != nil {
		c.ControllerVersion = h.active.Version()
	}
	h.clients[c.ID] = c
	return *c
}

// CloseClient forgets a client. Once the last client is gone a waiting controller activates.
func (h *Host) CloseClient(ctx context.Context, id uuid.UUID) error {
	h.mu.Lock()
	if _, ok := h.clients[id]; !ok {
		h.mu.Unlock()
		return cache.ErrClientNotFound
	}
	delete(h.clients, id)
	promote := len(h.clients) == 0 && h.waiting != nil
	h.mu.Unlock()
	if promote {
		return h.activateWaiting(ctx)
	}
	return nil
}

func (h *Host) Status() lifecycle.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := lifecycle.Status{Clients: len(h.clients)}
	if h.active != nil {
		st.ActiveVersion = h.active.Version()
		st.ActiveState = h.active.State()
	}
	if h.waiting != nil {
		st.WaitingVersion = h.waiting.Version()
	}
	return st
}

func (h *Host) Namespaces(ctx context.Context) ([]string, error) {
	return h.storage.Names(ctx)
}

// IsInstallFailure reports whether err came from a failed install.
func IsInstallFailure(err error) bool {
	return errors.Is(err, cache.ErrInstallFailed)
}
