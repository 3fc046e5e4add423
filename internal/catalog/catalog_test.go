// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id string) *Record {
	rec := &Record{
		ID:      id,
		Object:  KindVideo,
		Version: "1.0.0",
		Name:    "clip",
		Hash:    id,
		Metadata: Metadata{
			Added: time.Now().UnixMilli(),
			Tags:  []string{},
			Occurrences: []Occurrence{
				NewOccurrence(id, "/in/"+id+".mp4", 42, time.Unix(1700000000, 0)),
			},
		},
	}
	rec.RebuildSources()
	return rec
}

// both implementations must satisfy the same contract
func catalogs(t *testing.T) map[string]Catalog {
	t.Helper()
	badger, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badger.Close() })
	return map[string]Catalog{
		"memory": NewMemory(),
		"badger": badger,
	}
}

func TestCatalog_InsertAndLookup(t *testing.T) {
	for name, cat := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord("aabbccddeeff00112233445566778899")
			require.NoError(t, cat.Insert(ctx, rec))

			byID, err := cat.Lookup(ctx, rec.ID)
			require.NoError(t, err)
			if diff := cmp.Diff(rec, byID); diff != "" {
				t.Fatalf("lookup by id mismatch (-want +got):\n%s", diff)
			}

			_, err = cat.Lookup(ctx, "0000000000000000")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestCatalog_LookupBySource(t *testing.T) {
	for name, cat := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord("aabbccddeeff00112233445566778899")
			rec.Hash = "ffee00112233445566778899aabbccdd"
			rec.RebuildSources()
			require.NoError(t, cat.Insert(ctx, rec))

			byHash, err := cat.Lookup(ctx, rec.Hash)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, byHash.ID)
		})
	}
}

func TestCatalog_LookupByFile(t *testing.T) {
	for name, cat := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord("aabbccddeeff00112233445566778899")
			require.NoError(t, cat.Insert(ctx, rec))

			found, err := cat.LookupByFile(ctx, rec.Metadata.Occurrences[0].File)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, found.ID)

			_, err = cat.LookupByFile(ctx, "/in/unknown.mp4")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestCatalog_LiveWinsOverTombstone(t *testing.T) {
	for name, cat := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			shared := "11111111111111111111111111111111"

			dead := newRecord("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
			dead.Deleted = true
			dead.Sources = append(dead.Sources, shared)
			require.NoError(t, cat.Insert(ctx, dead))

			live := newRecord("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
			live.Sources = append(live.Sources, shared)
			require.NoError(t, cat.Insert(ctx, live))

			got, err := cat.Lookup(ctx, shared)
			require.NoError(t, err)
			assert.Equal(t, live.ID, got.ID, "live record must shadow the tombstone")

			// a tombstone alone still satisfies the lookup (dedup path)
			gotDead, err := cat.Lookup(ctx, dead.ID)
			require.NoError(t, err)
			assert.True(t, gotDead.Deleted)
		})
	}
}

func TestCatalog_InsertDuplicateIDFails(t *testing.T) {
	for name, cat := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord("aabbccddeeff00112233445566778899")
			require.NoError(t, cat.Insert(ctx, rec))
			assert.Error(t, cat.Insert(ctx, newRecord(rec.ID)))
		})
	}
}

func TestCatalog_ReplaceExtendsIndexes(t *testing.T) {
	for name, cat := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord("aabbccddeeff00112233445566778899")
			require.NoError(t, cat.Insert(ctx, rec))

			occ := NewOccurrence("99887766554433221100ffeeddccbbaa", "/in/copy.mp4", 42, time.Unix(1700000100, 0))
			require.True(t, rec.AddOccurrence(occ))
			rec.RebuildSources()
			require.NoError(t, cat.Replace(ctx, rec.ID, rec))

			byNewSource, err := cat.Lookup(ctx, occ.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, byNewSource.ID)

			byNewFile, err := cat.LookupByFile(ctx, occ.File)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, byNewFile.ID)
		})
	}
}
