// Package testutil holds lightweight function-field mocks shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/domain/lifecycle"
	"github.com/avatarctic/offline-cache/internal/core/ports"
)

// ErrOffline is what Network returns for unreachable URLs.
var ErrOffline = errors.New("network unreachable")

// Network is a scripted ports.Fetcher keyed by absolute URL. URLs without a route fail
// with ErrOffline. Calls are recorded.
type Network struct {
	mu      sync.Mutex
	routes  map[string]Route
	offline bool
	calls   []string
}

type Route struct {
	Status      int
	Body        string
	ContentType string
	Header      http.Header
}

func NewNetwork() *Network {
	return &Network{routes: make(map[string]Route)}
}

func (n *Network) Serve(url string, status int, body string) *Network {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[url] = Route{Status: status, Body: body}
	return n
}

// ServeRoute registers a full route, extra headers included.
func (n *Network) ServeRoute(url string, route Route) *Network {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[url] = route
	return n
}

// SetOffline makes every fetch fail.
func (n *Network) SetOffline(offline bool) {
	n.mu.Lock()
	n.offline = offline
	n.mu.Unlock()
}

func (n *Network) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func (n *Network) CallCount(url string) int {
	count := 0
	for _, c := range n.Calls() {
		if c == url {
			count++
		}
	}
	return count
}

func (n *Network) Fetch(_ context.Context, req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := req.URL.String()
	n.calls = append(n.calls, u)
	route, ok := n.routes[u]
	if n.offline || !ok {
		return nil, fmt.Errorf("fetch %s: %w", u, ErrOffline)
	}
	h := route.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	ct := route.ContentType
	if ct == "" {
		ct = "text/plain"
	}
	h.Set("Content-Type", ct)
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", route.Status, http.StatusText(route.Status)),
		StatusCode: route.Status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(route.Body)),
		Request:    req,
	}, nil
}

// CacheStorageMock is a ports.CacheStorage with overridable behavior.
type CacheStorageMock struct {
	OpenFn   func(ctx context.Context, name string) (ports.CacheNamespace, error)
	HasFn    func(ctx context.Context, name string) (bool, error)
	DeleteFn func(ctx context.Context, name string) (bool, error)
	NamesFn  func(ctx context.Context) ([]string, error)
	MatchFn  func(ctx context.Context, key string) (*cache.Entry, bool, error)
}

func (m *CacheStorageMock) Open(ctx context.Context, name string) (ports.CacheNamespace, error) {
	if m.OpenFn != nil {
		return m.OpenFn(ctx, name)
	}
	return &CacheNamespaceMock{NameValue: name}, nil
}
func (m *CacheStorageMock) Has(ctx context.Context, name string) (bool, error) {
	if m.HasFn != nil {
		return m.HasFn(ctx, name)
	}
	return false, nil
}
func (m *CacheStorageMock) Delete(ctx context.Context, name string) (bool, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, name)
	}
	return false, nil
}
func (m *CacheStorageMock) Names(ctx context.Context) ([]string, error) {
	if m.NamesFn != nil {
		return m.NamesFn(ctx)
	}
	return nil, nil
}
func (m *CacheStorageMock) Match(ctx context.Context, key string) (*cache.Entry, bool, error) {
	if m.MatchFn != nil {
		return m.MatchFn(ctx, key)
	}
	return nil, false, nil
}

// CacheNamespaceMock is a ports.CacheNamespace with overridable behavior.
type CacheNamespaceMock struct {
	NameValue string
	MatchFn   func(ctx context.Context, key string) (*cache.Entry, bool, error)
	PutFn     func(ctx context.Context, entry *cache.Entry) error
	KeysFn    func(ctx context.Context) ([]string, error)
}

func (m *CacheNamespaceMock) Name() string { return m.NameValue }
func (m *CacheNamespaceMock) Match(ctx context.Context, key string) (*cache.Entry, bool, error) {
	if m.MatchFn != nil {
		return m.MatchFn(ctx, key)
	}
	return nil, false, nil
}
func (m *CacheNamespaceMock) Put(ctx context.Context, entry *cache.Entry) error {
	if m.PutFn != nil {
		return m.PutFn(ctx, entry)
	}
	return nil
}
func (m *CacheNamespaceMock) Keys(ctx context.Context) ([]string, error) {
	if m.KeysFn != nil {
		return m.KeysFn(ctx)
	}
	return nil, nil
}

// HostMock is a ports.OfflineCacheHost with overridable behavior.
type HostMock struct {
	RegisterFn    func(ctx context.Context, version string) error
	FetchFn       func(ctx context.Context, req *http.Request) (*http.Response, error)
	PostMessageFn func(ctx context.Context, msg cache.Message) error
	OpenClientFn  func() lifecycle.Client
	CloseClientFn func(ctx context.Context, id uuid.UUID) error
	StatusFn      func() lifecycle.Status
	NamespacesFn  func(ctx context.Context) ([]string, error)
}

func (m *HostMock) Register(ctx context.Context, version string) error {
	if m.RegisterFn != nil {
		return m.RegisterFn(ctx, version)
	}
	return nil
}
func (m *HostMock) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if m.FetchFn != nil {
		return m.FetchFn(ctx, req)
	}
	return nil, ErrOffline
}
func (m *HostMock) PostMessage(ctx context.Context, msg cache.Message) error {
	if m.PostMessageFn != nil {
		return m.PostMessageFn(ctx, msg)
	}
	return nil
}
func (m *HostMock) OpenClient() lifecycle.Client {
	if m.OpenClientFn != nil {
		return m.OpenClientFn()
	}
	return lifecycle.Client{ID: uuid.New()}
}
func (m *HostMock) CloseClient(ctx context.Context, id uuid.UUID) error {
	if m.CloseClientFn != nil {
		return m.CloseClientFn(ctx, id)
	}
	return nil
}
func (m *HostMock) Status() lifecycle.Status {
	if m.StatusFn != nil {
		return m.StatusFn()
	}
	return lifecycle.Status{}
}
func (m *HostMock) Namespaces(ctx context.Context) ([]string, error) {
	if m.NamespacesFn != nil {
		return m.NamespacesFn(ctx)
	}
	return nil, nil
}
