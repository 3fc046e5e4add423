// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mediadex/mediadex/internal/catalog"
	"github.com/mediadex/mediadex/internal/config"
	"github.com/mediadex/mediadex/internal/execx"
	"github.com/mediadex/mediadex/internal/search"
)

// Image converts still images: identify, threshold check, canonical copy,
// thumbnail, and an animated preview for GIFs.
type Image struct {
	core *Core
	cfg  config.ImageConfig
	eff  config.Effective

	identify execx.Template
	thumb    execx.Template
	preview  execx.Template
}

func NewImage(core *Core, cfg config.ImageConfig, eff config.Effective) *Image {
	return &Image{
		core:     core,
		cfg:      cfg,
		eff:      eff,
		identify: execx.NewTemplate(cfg.Identify),
		thumb:    execx.NewTemplate(cfg.Thumbnail.Template),
		preview:  execx.NewTemplate(cfg.Preview.Template),
	}
}

func (p *Image) Kind() string { return "image" }

func (p *Image) Convert(ctx context.Context, slot *Slot, file string) error {
	c := p.core
	id, occ, proceed, err := c.begin(ctx, slot, "image", file, p.eff.CanSkip, p.eff.Delete)
	if err != nil || !proceed {
		return err
	}

	existing, err := c.Catalog.Lookup(ctx, id)
	if err == nil {
		return c.mergeExisting(ctx, "image", slot, existing, p.eff.DropTags, p.eff.Delete)
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	tree, err := p.examine(ctx, file)
	if err != nil {
		return err
	}
	width, height, aspect, found := findDimensions(tree)
	if !found {
		return fmt.Errorf("%w: %s: no dimensions in output", ErrIdentifyFailed, file)
	}
	if !p.withinBounds(width, height) {
		c.Stats.AddSkipped("image")
		c.emit("skipped", "image", file)
		c.logger("image").Debug().Str("file", file).
			Int("width", width).Int("height", height).Msg("outside size bounds")
		return nil
	}

	dir, stem := shardPaths(p.eff.Save, id)
	ext := strings.ToLower(occ.Extension)
	output := filepath.Join(dir, stem+"."+ext)
	thumbnail := filepath.Join(dir, stem+"p."+p.cfg.Thumbnail.Format)

	if err := ensureDir(dir); err != nil {
		return err
	}
	if err := copyFile(file, output, p.eff.Mode); err != nil {
		removeIfEmpty(dir)
		return err
	}

	if _, err := c.Exec.Run(ctx, p.thumb.Bin(), p.thumb.Render(map[string]string{
		"input":    output,
		"output":   thumbnail,
		"geometry": p.cfg.Thumbnail.Geometry,
	})); err != nil {
		removeQuiet(output, thumbnail)
		removeIfEmpty(dir)
		return fmt.Errorf("%w: %s: %v", ErrThumbnailFailed, file, err)
	}

	var previewRel string
	if ext == "gif" && !p.preview.Empty() {
		previewPath := filepath.Join(dir, stem+"p."+ext)
		if _, err := c.Exec.Run(ctx, p.preview.Bin(), p.preview.Render(map[string]string{
			"input":  output,
			"output": previewPath,
		})); err != nil {
			removeQuiet(output, thumbnail, previewPath)
			removeIfEmpty(dir)
			return fmt.Errorf("%w: %s: %v", ErrPreviewFailed, file, err)
		}
		previewRel = filepath.Join(id[:2], stem+"p."+ext)
	}

	rec := c.newRecord(catalog.KindImage, id, occ)
	rec.Width = width
	rec.Height = height
	rec.Aspect = aspect
	rec.Relative = filepath.Join(id[:2], stem+"."+ext)
	rec.Thumbnail = filepath.Join(id[:2], stem+"p."+p.cfg.Thumbnail.Format)
	rec.Preview = previewRel

	if err := c.Search.Index(ctx, "images", rec.ID, search.Body{"name": rec.Name}); err != nil {
		c.logger("image").Warn().Err(err).Str("id", rec.ID).Msg("search index write failed")
	}
	return c.finish(ctx, "image", slot, rec, p.eff.DropTags, p.eff.Delete)
}

// examine runs the identify tool and parses its verbose dump.
func (p *Image) examine(ctx context.Context, file string) (map[string]any, error) {
	res, err := p.core.Exec.Run(ctx, p.identify.Bin(), p.identify.Render(map[string]string{
		"input": file,
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIdentifyFailed, file, err)
	}
	return ParseIdentify(res.Stdout), nil
}

// withinBounds applies the minimum and the optional maximum dimension
// thresholds. A zero maximum axis is unbounded.
func (p *Image) withinBounds(width, height int) bool {
	if width < p.cfg.Minimum.Width || height < p.cfg.Minimum.Height {
		return false
	}
	if p.cfg.Maximum.Width > 0 && width > p.cfg.Maximum.Width {
		return false
	}
	if p.cfg.Maximum.Height > 0 && height > p.cfg.Maximum.Height {
		return false
	}
	return true
}
