// SPDX-License-Identifier: MIT

package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RebuildSources(t *testing.T) {
	rec := &Record{ID: "aa11", Hash: "bb22"}
	rec.Metadata.Occurrences = []Occurrence{
		{ID: "aa11", File: "/in/a"},
		{ID: "cc33", File: "/in/b"},
	}
	rec.RebuildSources()
	assert.Equal(t, []string{"aa11", "bb22", "cc33"}, rec.Sources)

	// rebuilding again is stable
	rec.RebuildSources()
	assert.Equal(t, []string{"aa11", "bb22", "cc33"}, rec.Sources)
}

func TestRecord_AddOccurrenceDedupesByFile(t *testing.T) {
	rec := &Record{ID: "aa11", Hash: "aa11"}
	occ := NewOccurrence("aa11", "/in/a.png", 10, time.Unix(0, 0))
	require.True(t, rec.AddOccurrence(occ))
	assert.False(t, rec.AddOccurrence(occ))
	assert.Len(t, rec.Metadata.Occurrences, 1)
}

func TestRecord_Validate(t *testing.T) {
	rec := &Record{ID: "aa11", Hash: "bb22"}
	rec.Metadata.Occurrences = []Occurrence{{ID: "cc33", File: "/in/a"}}
	require.Error(t, rec.Validate(), "sources not rebuilt yet")

	rec.RebuildSources()
	require.NoError(t, rec.Validate())

	rec.Metadata.Occurrences = append(rec.Metadata.Occurrences, Occurrence{ID: "cc33", File: "/in/a"})
	assert.Error(t, rec.Validate(), "duplicate occurrence file")
}

func TestNewOccurrence(t *testing.T) {
	occ := NewOccurrence("aa11", "/media/in/Some Movie.MP4", 1234, time.UnixMilli(1700000000000))
	assert.Equal(t, "/media/in", occ.Path)
	assert.Equal(t, "Some Movie", occ.Name)
	assert.Equal(t, "MP4", occ.Extension)
	assert.Equal(t, int64(1700000000000), occ.Timestamp)
}

func TestRecord_Shard(t *testing.T) {
	rec := &Record{ID: "d41d8cd98f00b204e9800998ecf8427e"}
	dir, rest := rec.Shard()
	assert.Equal(t, "d4", dir)
	assert.Equal(t, "1d8cd98f00b204e9800998ecf8427e", rest)
}
