// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediadex/mediadex/internal/catalog"
	"github.com/mediadex/mediadex/internal/config"
	"github.com/mediadex/mediadex/internal/execx"
)

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func lastArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

// imageExec fakes the identify and thumbnail tools, reporting the given
// geometry for every inspected file.
func imageExec(geometry string) *fakeExec {
	return &fakeExec{handler: shasumHandler(func(bin string, args []string, onLine func(string)) (execx.Result, error) {
		switch {
		case bin == "magick" && len(args) > 0 && args[0] == "identify":
			out := fmt.Sprintf("Image: %s\n  Format: PNG\n  Geometry: %s\n  Depth: 8\n", lastArg(args), geometry)
			return execx.Result{Stdout: out}, nil
		case bin == "magick" && hasArg(args, "-thumbnail"):
			return execx.Result{}, os.WriteFile(lastArg(args), []byte("THUMB"), 0o644)
		case bin == "magick" && hasArg(args, "-resize"):
			return execx.Result{}, os.WriteFile(lastArg(args), []byte("PREVIEW"), 0o644)
		default:
			return execx.Result{ExitCode: 1}, fmt.Errorf("unexpected invocation: %s %v", bin, args)
		}
	})}
}

func newImage(t *testing.T, core *Core, save string) *Image {
	t.Helper()
	cfg := config.Defaults().Types.Image
	cfg.Minimum = config.Dimensions{Width: 128, Height: 128}
	return NewImage(core, cfg, testEffective(save))
}

func TestImage_ConvertIndexesAndWritesArtifacts(t *testing.T) {
	save := t.TempDir()
	in := t.TempDir()
	src := filepath.Join(in, "pic.png")
	writeFile(t, src, "PNGDATA")
	id := hashFile(t, src)

	core := newCore(t, imageExec("1920x1080+0+0"))
	p := newImage(t, core, save)

	require.NoError(t, convertOne(t, core, p, src))

	rec, err := core.Catalog.Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, catalog.KindImage, rec.Object)
	assert.Equal(t, id, rec.Hash)
	assert.Equal(t, 1920, rec.Width)
	assert.Equal(t, 1080, rec.Height)
	assert.InDelta(t, 1920.0/1080.0, rec.Aspect, 1e-9)
	assert.Equal(t, "pic", rec.Name)
	require.Len(t, rec.Metadata.Occurrences, 1)
	assert.Equal(t, src, rec.Metadata.Occurrences[0].File)

	output := filepath.Join(save, id[:2], id[2:]+".png")
	thumb := filepath.Join(save, id[:2], id[2:]+"p.png")
	assert.FileExists(t, output)
	assert.FileExists(t, thumb)
	assert.Equal(t, id, hashFile(t, output))

	snap := core.Stats.Snapshot()
	assert.EqualValues(t, 1, snap.Images)
	assert.EqualValues(t, 1, snap.Converted)
	assert.EqualValues(t, 0, snap.Failed)
}

func TestImage_UnderMinimumIsNotIndexed(t *testing.T) {
	save := t.TempDir()
	src := filepath.Join(t.TempDir(), "small.png")
	writeFile(t, src, "SMALL")
	id := hashFile(t, src)

	core := newCore(t, imageExec("64x64+0+0"))
	p := newImage(t, core, save)

	require.NoError(t, convertOne(t, core, p, src))

	_, err := core.Catalog.Lookup(context.Background(), id)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.NoDirExists(t, filepath.Join(save, id[:2]))

	snap := core.Stats.Snapshot()
	assert.EqualValues(t, 0, snap.Images)
	assert.EqualValues(t, 1, snap.Skipped)
}

func TestImage_SecondCopyMergesAsDuplicate(t *testing.T) {
	save := t.TempDir()
	in := t.TempDir()
	a := filepath.Join(in, "a.png")
	b := filepath.Join(in, "b.png")
	writeFile(t, a, "SAMEBYTES")
	writeFile(t, b, "SAMEBYTES")
	id := hashFile(t, a)

	core := newCore(t, imageExec("800x600+0+0"))
	p := newImage(t, core, save)

	require.NoError(t, convertOne(t, core, p, a))
	require.NoError(t, convertOne(t, core, p, b))

	rec, err := core.Catalog.Lookup(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rec.Metadata.Occurrences, 2)
	assert.NoError(t, rec.Validate())

	snap := core.Stats.Snapshot()
	assert.EqualValues(t, 1, snap.Images)
	assert.EqualValues(t, 1, snap.Converted)
	assert.EqualValues(t, 1, snap.Duplicates)
}

func TestImage_KnownPathIsSkipped(t *testing.T) {
	save := t.TempDir()
	src := filepath.Join(t.TempDir(), "pic.png")
	writeFile(t, src, "PNGDATA")

	core := newCore(t, imageExec("800x600+0+0"))
	p := newImage(t, core, save)

	require.NoError(t, convertOne(t, core, p, src))
	require.NoError(t, convertOne(t, core, p, src))

	snap := core.Stats.Snapshot()
	assert.EqualValues(t, 1, snap.Converted)
	assert.EqualValues(t, 1, snap.Skipped)
	assert.EqualValues(t, 0, snap.Duplicates)
}

func TestImage_ThumbnailFailureCleansUp(t *testing.T) {
	save := t.TempDir()
	src := filepath.Join(t.TempDir(), "pic.png")
	writeFile(t, src, "PNGDATA")
	id := hashFile(t, src)

	exec := &fakeExec{handler: shasumHandler(func(bin string, args []string, onLine func(string)) (execx.Result, error) {
		if len(args) > 0 && args[0] == "identify" {
			return execx.Result{Stdout: "Image: x\n  Geometry: 800x600+0+0\n"}, nil
		}
		return execx.Result{ExitCode: 1}, errors.New("boom")
	})}
	core := newCore(t, exec)
	p := newImage(t, core, save)

	err := convertOne(t, core, p, src)
	assert.ErrorIs(t, err, ErrThumbnailFailed)

	_, lookupErr := core.Catalog.Lookup(context.Background(), id)
	assert.ErrorIs(t, lookupErr, catalog.ErrNotFound)
	assert.NoDirExists(t, filepath.Join(save, id[:2]))
}

func TestImage_DeletePolicyRemovesSource(t *testing.T) {
	save := t.TempDir()
	src := filepath.Join(t.TempDir(), "pic.png")
	writeFile(t, src, "PNGDATA")

	core := newCore(t, imageExec("800x600+0+0"))
	eff := testEffective(save)
	eff.Delete = true
	cfg := config.Defaults().Types.Image
	cfg.Minimum = config.Dimensions{Width: 1, Height: 1}
	p := NewImage(core, cfg, eff)

	require.NoError(t, convertOne(t, core, p, src))
	assert.NoFileExists(t, src)
}
