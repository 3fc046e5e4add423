// SPDX-License-Identifier: MIT

package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/redis/go-redis/v9"
)

// Store persists the indexed-path set between runs.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, paths []string) error
}

// FileStore keeps the set as a JSON array on disk, written atomically so an
// interrupt mid-flush never truncates it.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(ctx context.Context) ([]string, error) {
	data, err := os.ReadFile(s.Path) // #nosec G304 -- operator-supplied path
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", s.Path, err)
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("parse cache %s: %w", s.Path, err)
	}
	return paths, nil
}

func (s *FileStore) Save(ctx context.Context, paths []string) error {
	data, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", s.Path, err)
	}
	return nil
}

// RedisStore keeps the set as a JSON array under a single key, for fleets
// sharing one cache across hosts.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr, key string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache key %s: %w", s.key, err)
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("parse cache key %s: %w", s.key, err)
	}
	return paths, nil
}

func (s *RedisStore) Save(ctx context.Context, paths []string) error {
	data, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write cache key %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// Cache is the in-memory indexed-path set backed by an optional Store. With
// no store it still deduplicates within the run but persists nothing.
type Cache struct {
	store Store

	mu    sync.Mutex
	paths map[string]struct{}
}

func NewCache(store Store) *Cache {
	return &Cache{store: store, paths: make(map[string]struct{})}
}

// Load populates the set from the store.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	paths, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		c.paths[p] = struct{}{}
	}
	return nil
}

func (c *Cache) Add(path string) {
	c.mu.Lock()
	c.paths[path] = struct{}{}
	c.mu.Unlock()
}

func (c *Cache) Contains(path string) bool {
	c.mu.Lock()
	_, ok := c.paths[path]
	c.mu.Unlock()
	return ok
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

// Flush writes the set back through the store, sorted for stable output.
func (c *Cache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	paths := make([]string, 0, len(c.paths))
	for p := range c.paths {
		paths = append(paths, p)
	}
	c.mu.Unlock()
	sort.Strings(paths)
	return c.store.Save(ctx, paths)
}
