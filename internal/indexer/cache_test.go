// SPDX-License-Identifier: MIT

package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	store := &FileStore{Path: path}
	ctx := context.Background()

	// missing file is an empty set, not an error
	paths, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)

	require.NoError(t, store.Save(ctx, []string{"/in/a.txt", "/in/b.txt"}))
	paths, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/a.txt", "/in/b.txt"}, paths)
}

func TestFileStore_CorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := (&FileStore{Path: path}).Load(context.Background())
	assert.Error(t, err)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	store := NewRedisStore(srv.Addr(), "mediadex:indexed")
	defer store.Close()
	ctx := context.Background()

	paths, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)

	require.NoError(t, store.Save(ctx, []string{"/in/a.mp4"}))
	paths, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/a.mp4"}, paths)
}

func TestCache_FlushWritesSortedSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	store := &FileStore{Path: path}
	cache := NewCache(store)
	ctx := context.Background()

	cache.Add("/in/z.txt")
	cache.Add("/in/a.txt")
	cache.Add("/in/z.txt") // idempotent
	require.NoError(t, cache.Flush(ctx))

	reloaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/a.txt", "/in/z.txt"}, reloaded)

	fresh := NewCache(store)
	require.NoError(t, fresh.Load(ctx))
	assert.True(t, fresh.Contains("/in/a.txt"))
	assert.True(t, fresh.Contains("/in/z.txt"))
	assert.Equal(t, 2, fresh.Len())
}

func TestCache_NilStoreStaysInMemory(t *testing.T) {
	cache := NewCache(nil)
	ctx := context.Background()

	require.NoError(t, cache.Load(ctx))
	cache.Add("/in/a.txt")
	assert.True(t, cache.Contains("/in/a.txt"))
	require.NoError(t, cache.Flush(ctx))
}
