// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mediadex/mediadex/internal/catalog"
	"github.com/mediadex/mediadex/internal/config"
	"github.com/mediadex/mediadex/internal/execx"
	"github.com/mediadex/mediadex/internal/search"
)

// videoIndex is the logical full-text index for video records.
const videoIndex = "videos"

// probeInfo is the subset of the probe tool's JSON output the pipeline
// consumes.
type probeInfo struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType          string `json:"codec_type"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	DisplayAspectRatio string `json:"display_aspect_ratio"`
}

func (pi *probeInfo) duration() float64 {
	d, err := strconv.ParseFloat(pi.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

func (pi *probeInfo) videoStream() *probeStream {
	for i := range pi.Streams {
		if pi.Streams[i].CodecType == "video" {
			return &pi.Streams[i]
		}
	}
	return nil
}

func (pi *probeInfo) hasSubtitleStream() bool {
	for _, s := range pi.Streams {
		if s.CodecType == "subtitle" {
			return true
		}
	}
	return false
}

// aspect returns the display aspect ratio, preferring the declared ratio
// over the pixel dimensions.
func (s *probeStream) aspect() float64 {
	if parts := strings.SplitN(s.DisplayAspectRatio, ":", 2); len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
	}
	if s.Height != 0 {
		return float64(s.Width) / float64(s.Height)
	}
	return 0
}

// Video transcodes to the canonical container and derives the full artifact
// set: thumbnail, preview clip, sound profile and subtitles.
type Video struct {
	core *Core
	cfg  config.VideoConfig
	eff  config.Effective

	probe       execx.Template
	convert     execx.Template
	thumb       execx.Template
	preview     execx.Template
	sound       execx.Template
	subtitle    execx.Template
	subFallback execx.Template
}

func NewVideo(core *Core, cfg config.VideoConfig, eff config.Effective) *Video {
	return &Video{
		core:        core,
		cfg:         cfg,
		eff:         eff,
		probe:       execx.NewTemplate(cfg.Probe),
		convert:     execx.NewTemplate(cfg.Convert),
		thumb:       execx.NewTemplate(cfg.Thumbnail.Template),
		preview:     execx.NewTemplate(cfg.Preview.Template),
		sound:       execx.NewTemplate(cfg.Sound.Template),
		subtitle:    execx.NewTemplate(cfg.Subtitles.Template),
		subFallback: execx.NewTemplate(cfg.Subtitles.Fallback),
	}
}

func (p *Video) Kind() string { return "video" }

func (p *Video) Convert(ctx context.Context, slot *Slot, file string) error {
	c := p.core
	id, occ, proceed, err := c.begin(ctx, slot, "video", file, p.eff.CanSkip, p.eff.Delete)
	if err != nil || !proceed {
		return err
	}

	existing, err := c.Catalog.Lookup(ctx, id)
	if err == nil {
		return c.mergeExisting(ctx, "video", slot, existing, p.eff.DropTags, p.eff.Delete)
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	info, err := p.examine(ctx, file)
	if err != nil {
		return err
	}

	dir, stem := shardPaths(p.eff.Save, id)
	output := filepath.Join(dir, stem+"."+p.cfg.Format)
	previewPath := filepath.Join(dir, stem+"p."+p.cfg.Format)
	thumbPath := filepath.Join(dir, stem+"p."+p.cfg.Thumbnail.Format)
	subPath := filepath.Join(dir, stem+"."+p.cfg.Subtitles.Format)
	if err := ensureDir(dir); err != nil {
		return err
	}

	subText := p.extractSubtitles(ctx, file, occ, info, subPath)

	if err := p.transcode(ctx, slot, file, output); err != nil {
		removeQuiet(output, subPath)
		removeIfEmpty(dir)
		return err
	}
	if err := os.Chmod(output, p.eff.Mode); err != nil {
		c.logger("video").Warn().Err(err).Str("file", output).Msg("chmod failed")
	}

	// two different sources can transcode to identical bytes; the output
	// fingerprint is the second dedup gate
	outHash, err := c.Hasher.Sum(ctx, output)
	if err != nil {
		removeQuiet(output, subPath)
		removeIfEmpty(dir)
		return err
	}
	if prior, err := c.Catalog.Lookup(ctx, outHash); err == nil {
		removeQuiet(output, subPath)
		removeIfEmpty(dir)
		return c.mergeExisting(ctx, "video", slot, prior, p.eff.DropTags, p.eff.Delete)
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	duration := info.duration()
	if err := p.thumbnail(ctx, output, thumbPath, duration); err != nil {
		removeQuiet(output, thumbPath, subPath)
		removeIfEmpty(dir)
		return err
	}

	final, err := p.examine(ctx, output)
	if err != nil {
		removeQuiet(output, thumbPath, subPath)
		removeIfEmpty(dir)
		return err
	}
	outInfo, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("stat %s: %w", output, err)
	}
	duration = final.duration()

	sound, err := p.checkSound(ctx, output)
	if err != nil {
		removeQuiet(output, thumbPath, subPath)
		removeIfEmpty(dir)
		return err
	}

	if err := p.makePreview(ctx, output, previewPath, duration); err != nil {
		removeQuiet(output, thumbPath, previewPath, subPath)
		removeIfEmpty(dir)
		return err
	}

	rec := c.newRecord(catalog.KindVideo, id, occ)
	rec.Hash = outHash
	rec.Size = outInfo.Size()
	rec.Duration = duration
	rec.Sound = sound
	rec.Relative = filepath.Join(id[:2], stem+"."+p.cfg.Format)
	rec.Thumbnail = filepath.Join(id[:2], stem+"p."+p.cfg.Thumbnail.Format)
	if !p.preview.Empty() && p.cfg.Preview.Duration > 0 {
		rec.Preview = filepath.Join(id[:2], stem+"p."+p.cfg.Format)
	}
	if stream := final.videoStream(); stream != nil {
		rec.Width = stream.Width
		rec.Height = stream.Height
		rec.Aspect = stream.aspect()
	}
	if subText != "" {
		rec.Subtitles = filepath.Join(id[:2], stem+"."+p.cfg.Subtitles.Format)
		if p.cfg.Subtitles.ToDescription {
			rec.Description = subText
		}
		if p.cfg.Subtitles.Index != "" {
			if err := c.Search.Index(ctx, p.cfg.Subtitles.Index, rec.ID, search.Body{
				"name":     rec.Name,
				"contents": subText,
			}); err != nil {
				c.logger("video").Warn().Err(err).Str("id", rec.ID).Msg("subtitle index write failed")
			}
			if err := c.Search.Refresh(ctx, p.cfg.Subtitles.Index); err != nil {
				c.logger("video").Warn().Err(err).Msg("subtitle index refresh failed")
			}
		}
	}

	if err := c.Search.Index(ctx, videoIndex, rec.ID, search.Body{
		"name":        rec.Name,
		"description": rec.Description,
	}); err != nil {
		c.logger("video").Warn().Err(err).Str("id", rec.ID).Msg("search index write failed")
	}
	if err := c.Search.Refresh(ctx, videoIndex); err != nil {
		c.logger("video").Warn().Err(err).Msg("search refresh failed")
	}

	return c.finish(ctx, "video", slot, rec, p.eff.DropTags, p.eff.Delete)
}

// examine probes a media file and decodes the JSON metadata.
func (p *Video) examine(ctx context.Context, file string) (*probeInfo, error) {
	res, err := p.core.Exec.Run(ctx, p.probe.Bin(), p.probe.Render(map[string]string{
		"input": file,
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProbeFailed, file, err)
	}
	var info probeInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProbeFailed, file, err)
	}
	return &info, nil
}

// extractSubtitles is best effort: a sibling subtitle file wins, then the
// embedded subtitle stream via the language-filtered template, then the
// fallback template. Extracted text failing the sanity check is discarded.
func (p *Video) extractSubtitles(ctx context.Context, file string, occ catalog.Occurrence, info *probeInfo, subPath string) string {
	c := p.core
	logger := c.logger("video")

	sibling := filepath.Join(occ.Path, occ.Name+"."+p.cfg.Subtitles.Format)
	if st, err := os.Stat(sibling); err == nil && st.Mode().IsRegular() {
		if err := copyFile(sibling, subPath, p.eff.Mode); err != nil {
			logger.Warn().Err(err).Str("file", sibling).Msg("sibling subtitle copy failed")
			return ""
		}
	} else if info.hasSubtitleStream() && !p.subtitle.Empty() {
		_, err := c.Exec.Run(ctx, p.subtitle.Bin(), p.subtitle.Render(map[string]string{
			"input":    file,
			"output":   subPath,
			"language": p.cfg.Subtitles.Language,
		}))
		if err != nil && !p.subFallback.Empty() {
			logger.Debug().Err(err).Str("file", file).Msg("subtitle extraction failed, trying fallback")
			_, err = c.Exec.Run(ctx, p.subFallback.Bin(), p.subFallback.Render(map[string]string{
				"input":  file,
				"output": subPath,
			}))
		}
		if err != nil {
			logger.Debug().Err(err).Str("file", file).Msg("subtitle extraction abandoned")
			removeQuiet(subPath)
			return ""
		}
		if err := os.Chmod(subPath, p.eff.Mode); err != nil {
			logger.Warn().Err(err).Str("file", subPath).Msg("chmod failed")
		}
	} else {
		return ""
	}

	raw, err := os.ReadFile(subPath) // #nosec G304
	if err != nil {
		removeQuiet(subPath)
		return ""
	}
	text := ParseSubtitleText(string(raw))
	if !subtitleSane(text) {
		logger.Debug().Str("file", file).Msg("extracted subtitles failed sanity check")
		removeQuiet(subPath)
		return ""
	}
	return text
}

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// transcode runs the convert template, tracking progress from the tool's
// stderr: the Duration header fixes the total, each time= line moves the
// current value.
func (p *Video) transcode(ctx context.Context, slot *Slot, file, output string) error {
	c := p.core
	var total float64
	_, err := c.Exec.RunStream(ctx, p.convert.Bin(), p.convert.Render(map[string]string{
		"input":  file,
		"output": output,
		"format": p.cfg.Format,
	}), func(line string) {
		if m := durationRe.FindStringSubmatch(line); m != nil && total == 0 {
			total = clockSeconds(m)
			c.Slots.SetProgress(slot, 0, total)
			c.UI.UpdateProgress(slot.Index, 0, total)
			return
		}
		if m := timeRe.FindStringSubmatch(line); m != nil {
			value := clockSeconds(m)
			c.Slots.SetProgress(slot, value, total)
			c.UI.UpdateProgress(slot.Index, value, total)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConvertFailed, file, err)
	}
	return nil
}

// thumbnail captures a frame at the configured time, clamped into the clip.
func (p *Video) thumbnail(ctx context.Context, output, thumbPath string, duration float64) error {
	t := thumbnailTime(p.cfg.Thumbnail.Time, duration)
	_, err := p.core.Exec.Run(ctx, p.thumb.Bin(), p.thumb.Render(map[string]string{
		"input":  output,
		"output": thumbPath,
		"time":   fmt.Sprintf("%02d", t),
	}))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrThumbnailFailed, output, err)
	}
	if err := os.Chmod(thumbPath, p.eff.Mode); err != nil {
		p.core.logger("video").Warn().Err(err).Str("file", thumbPath).Msg("chmod failed")
	}
	return nil
}

// thumbnailTime clamps the configured capture time into [0, duration-1],
// treating NaN, infinite and negative durations as zero.
func thumbnailTime(want, duration float64) int {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return 0
	}
	t := math.Floor(math.Min(want, duration-1))
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	return int(t)
}

// checkSound runs the level detector and classifies silence from the mean
// volume. Unparsable detector output degrades to the silent sentinel.
func (p *Video) checkSound(ctx context.Context, output string) (*catalog.Sound, error) {
	if !p.cfg.Sound.Check || p.sound.Empty() {
		return catalog.SilentSound(), nil
	}
	res, err := p.core.Exec.Run(ctx, p.sound.Bin(), p.sound.Render(map[string]string{
		"input": output,
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSoundCheckFailed, output, err)
	}
	return parseSound(res.Stderr, p.cfg.Sound.Threshold), nil
}

var volumeRe = regexp.MustCompile(`(max|mean)_volume:\s*(-?\d+(?:\.\d+)?)\s*dB`)

func parseSound(stderr string, threshold float64) *catalog.Sound {
	sound := catalog.SilentSound()
	var haveMean bool
	for _, m := range volumeRe.FindAllStringSubmatch(stderr, -1) {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case "max":
			sound.Max = v
		case "mean":
			sound.Mean = v
			haveMean = true
		}
	}
	if haveMean {
		sound.Silent = sound.Mean <= threshold
	}
	return sound
}

// makePreview samples the clip into a short preview at a frame interval
// derived from the duration.
func (p *Video) makePreview(ctx context.Context, output, previewPath string, duration float64) error {
	if p.preview.Empty() || p.cfg.Preview.Duration <= 0 {
		return nil
	}
	interval := int(math.Ceil(duration / float64(p.cfg.Preview.Duration)))
	if interval < 1 {
		interval = 1
	}
	_, err := p.core.Exec.Run(ctx, p.preview.Bin(), p.preview.Render(map[string]string{
		"input":    output,
		"output":   previewPath,
		"interval": strconv.Itoa(interval),
	}))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPreviewFailed, output, err)
	}
	if err := os.Chmod(previewPath, p.eff.Mode); err != nil {
		p.core.logger("video").Warn().Err(err).Str("file", previewPath).Msg("chmod failed")
	}
	return nil
}

// clockSeconds converts a matched HH:MM:SS.mmm triple to seconds.
func clockSeconds(m []string) float64 {
	h, _ := strconv.ParseFloat(m[1], 64)
	min, _ := strconv.ParseFloat(m[2], 64)
	s, _ := strconv.ParseFloat(m[3], 64)
	return h*3600 + min*60 + s
}
