// SPDX-License-Identifier: MIT

package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Scanned(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Path)
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func mediaTypes() []TypeRule {
	return []TypeRule{
		{Name: "image", Enabled: true, Pattern: "**/*.{jpg,png,gif}"},
		{Name: "text", Enabled: true, Pattern: "**/*.txt"},
		{Name: "video", Enabled: true, Pattern: "**/*.{mp4,mkv}"},
	}
}

func TestScanner_ClassifiesByFirstMatchingType(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"))
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, "sub", "clip.mp4"))
	writeFile(t, filepath.Join(root, "skip.bin"))

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 2, Recursive: true}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	require.Len(t, sink.events, 3)
	kinds := map[string]string{}
	for _, ev := range sink.events {
		kinds[filepath.Base(ev.Path)] = ev.Type
	}
	assert.Equal(t, "image", kinds["a.png"])
	assert.Equal(t, "text", kinds["notes.txt"])
	assert.Equal(t, "video", kinds["clip.mp4"])
	assert.Equal(t, int64(2), s.Directories())
	assert.Equal(t, int64(3), s.Files())
}

func TestScanner_DotfilesSkippedByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".hidden.png"))
	writeFile(t, filepath.Join(root, ".cache", "a.png"))
	writeFile(t, filepath.Join(root, "shown.png"))

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 1, Recursive: true}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	require.Len(t, sink.events, 1)
	assert.Equal(t, "shown.png", filepath.Base(sink.events[0].Path))
}

func TestScanner_NotRecursiveStaysShallow(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.png"))
	writeFile(t, filepath.Join(root, "deep", "nested.png"))

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 1, Recursive: false}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	require.Len(t, sink.events, 1)
	assert.Equal(t, "top.png", filepath.Base(sink.events[0].Path))
}

func TestScanner_MaxDepthEmitsButDoesNotDescend(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "d1", "at-limit.png"))
	writeFile(t, filepath.Join(root, "d1", "d2", "below-limit.png"))

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 1, Recursive: true, MaxDepth: 1}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	require.Len(t, sink.events, 1)
	assert.Equal(t, "at-limit.png", filepath.Base(sink.events[0].Path))
}

func TestScanner_GlobalExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep", "a.png"))
	writeFile(t, filepath.Join(root, "node_modules", "b.png"))

	sink := &collector{}
	s := New(Config{
		Types:       mediaTypes(),
		Exclude:     []string{"**/node_modules"},
		Concurrency: 2,
		Recursive:   true,
	}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	require.Len(t, sink.events, 1)
	assert.Equal(t, "a.png", filepath.Base(sink.events[0].Path))
}

func TestScanner_PerTypeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.png"))
	writeFile(t, filepath.Join(root, "sample.thumb.png"))

	types := []TypeRule{
		{Name: "image", Enabled: true, Pattern: "**/*.png", Exclude: "**/*.thumb.png"},
	}
	sink := &collector{}
	s := New(Config{Types: types, Concurrency: 1, Recursive: true}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	require.Len(t, sink.events, 1)
	assert.Equal(t, "keep.png", filepath.Base(sink.events[0].Path))
}

func TestScanner_SymlinkLoopTerminates(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.png"))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "sub", "loop")))

	sink := &collector{}
	s := New(Config{
		Types:          mediaTypes(),
		Concurrency:    2,
		Recursive:      true,
		FollowSymlinks: true,
	}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	// every real path at most once
	require.Len(t, sink.events, 1)
	assert.Equal(t, int64(2), s.Directories())
}

func TestScanner_DirectorySymlinksIgnoredUnlessFollowed(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "elsewhere.png"))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 1, Recursive: true}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	assert.Empty(t, sink.events)
}

func TestScanner_FileSymlinksResolveWithoutFollow(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "elsewhere.png")
	writeFile(t, target)
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.png")))

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 1, Recursive: true}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	// only descent through linked directories needs followSymlinks; a
	// symlinked file is indexed under its real path
	require.Len(t, sink.events, 1)
	real, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, real, sink.events[0].Path)
	assert.Equal(t, "image", sink.events[0].Type)
}

func TestScanner_SortedEmissionOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"charlie.png", "alpha.png", "bravo.png"} {
		writeFile(t, filepath.Join(root, name))
	}

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 1, Recursive: true, Sort: true}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()

	require.Len(t, sink.events, 3)
	assert.Equal(t, "alpha.png", filepath.Base(sink.events[0].Path))
	assert.Equal(t, "bravo.png", filepath.Base(sink.events[1].Path))
	assert.Equal(t, "charlie.png", filepath.Base(sink.events[2].Path))
}

func TestScanner_ClearResetsState(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"))

	sink := &collector{}
	s := New(Config{Types: mediaTypes(), Concurrency: 1, Recursive: true}, sink)
	defer s.Close()

	s.Add(root)
	s.Wait()
	require.Len(t, sink.events, 1)

	// without Clear the rescan is a no-op
	s.Add(root)
	s.Wait()
	require.Len(t, sink.events, 1)

	s.Clear()
	s.Add(root)
	s.Wait()
	assert.Len(t, sink.events, 2)
	assert.ElementsMatch(t, sink.paths(), sink.paths())
}
