package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/ports"
)

// CacheStorage is a process-local ports.CacheStorage. Contents are lost on restart.
type CacheStorage struct {
	mu     sync.RWMutex
	order  []string
	spaces map[string]*namespace
}

func NewCacheStorage() *CacheStorage {
	return &CacheStorage{spaces: make(map[string]*namespace)}
}

type namespace struct {
	name    string
	mu      sync.RWMutex
	entries map[string]*cache.Entry
}

func (s *CacheStorage) Open(_ context.Context, name string) (ports.CacheNamespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.spaces[name]; ok {
		return ns, nil
	}
	ns := &namespace{name: name, entries: make(map[string]*cache.Entry)}
	s.spaces[name] = ns
	s.order = append(s.order, name)
	return ns, nil
}

func (s *CacheStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spaces[name]
	return ok, nil
}

func (s *CacheStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spaces[name]; !ok {
		return false, nil
	}
	delete(s.spaces, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return true, nil
}

func (s *CacheStorage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

func (s *CacheStorage) Match(ctx context.Context, key string) (*cache.Entry, bool, error) {
	s.mu.RLock()
	spaces := make([]*namespace, 0, len(s.order))
	for _, n := range s.order {
		spaces = append(spaces, s.spaces[n])
	}
	s.mu.RUnlock()
	for _, ns := range spaces {
		if e, ok, _ := ns.Match(ctx, key); ok {
			return e, true, nil
		}
	}
	return nil, false, nil
}

func (n *namespace) Name() string { return n.name }

func (n *namespace) Match(_ context.Context, key string) (*cache.Entry, bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.entries[key]
	return e, ok, nil
}

func (n *namespace) Put(_ context.Context, entry *cache.Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[entry.URL] = entry
	return nil
}

func (n *namespace) Keys(_ context.Context) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	keys := make([]string, 0, len(n.entries))
	for k := range n.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}
