package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/ports"
	"github.com/avatarctic/offline-cache/internal/infrastructure/codec"
)

// RedisCacheStorage implements ports.CacheStorage on Redis.
//
// Namespaces are members of a sorted set scored by creation time; each namespace's
// entries live in one hash keyed by URL. All keys share a hash tag so the
// multi-key transactions also work against a cluster.
type RedisCacheStorage struct {
	r      redis.Cmdable
	prefix string
	codec  *codec.EntryCodec
}

// NewRedisCacheStorage creates a Redis-backed cache storage. prefix namespaces every key.
func NewRedisCacheStorage(r redis.Cmdable, prefix string, c *codec.EntryCodec) *RedisCacheStorage {
	return &RedisCacheStorage{r: r, prefix: prefix, codec: c}
}

func (s *RedisCacheStorage) indexKey() string {
	return "{" + s.prefix + "}:namespaces"
}

func (s *RedisCacheStorage) entriesKey(name string) string {
	return "{" + s.prefix + "}:ns:" + name
}

func (s *RedisCacheStorage) Open(ctx context.Context, name string) (ports.CacheNamespace, error) {
	err := s.r.ZAddNX(ctx, s.indexKey(), &redis.Z{Score: float64(time.Now().UnixNano()), Member: name}).Err()
	if err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", name, err)
	}
	return &redisNamespace{s: s, name: name}, nil
}

func (s *RedisCacheStorage) Has(ctx context.Context, name string) (bool, error) {
	err := s.r.ZScore(ctx, s.indexKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.indexKey(), name)
		pipe.Del(ctx, s.entriesKey(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete namespace %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

func (s *RedisCacheStorage) Names(ctx context.Context) ([]string, error) {
	return s.r.ZRange(ctx, s.indexKey(), 0, -1).Result()
}

func (s *RedisCacheStorage) Match(ctx context.Context, key string) (*cache.Entry, bool, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(names) == 0 {
		return nil, false, nil
	}
	cmds := make([]*redis.StringCmd, len(names))
	_, err = s.r.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, n := range names {
			cmds[i] = pipe.HGet(ctx, s.entriesKey(n), key)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, err
	}
	for _, cmd := range cmds {
		b, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		e, err := s.codec.Unmarshal(b)
		if err != nil {
			return nil, false, err
		}
		return e, true, nil
	}
	return nil, false, nil
}

type redisNamespace struct {
	s    *RedisCacheStorage
	name string
}

func (n *redisNamespace) Name() string { return n.name }

func (n *redisNamespace) Match(ctx context.Context, key string) (*cache.Entry, bool, error) {
	b, err := n.s.r.HGet(ctx, n.s.entriesKey(n.name), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	e, err := n.s.codec.Unmarshal(b)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (n *redisNamespace) Put(ctx context.Context, entry *cache.Entry) error {
	b, err := n.s.codec.Marshal(entry)
	if err != nil {
		return err
	}
	return n.s.r.HSet(ctx, n.s.entriesKey(n.name), entry.URL, b).Err()
}

func (n *redisNamespace) Keys(ctx context.Context) ([]string, error) {
	keys, err := n.s.r.HKeys(ctx, n.s.entriesKey(n.name)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}
