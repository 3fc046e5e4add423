// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mediadex/mediadex/internal/catalog"
	"github.com/mediadex/mediadex/internal/config"
	"github.com/mediadex/mediadex/internal/search"
)

// textIndex is the logical full-text index for text records.
const textIndex = "texts"

// Processor rewrites source text before it is fingerprinted and stored.
type Processor func(rec *catalog.Record, text string) string

// Summarizer produces a short description from normalized text.
type Summarizer func(text string, length int) string

// Text converts plain-text works: optional rewrite hook, canonical hash,
// summarization, full-text indexing and compressed storage.
type Text struct {
	core *Core
	cfg  config.TextConfig
	eff  config.Effective

	Processor  Processor
	Summarizer Summarizer
}

func NewText(core *Core, cfg config.TextConfig, eff config.Effective) *Text {
	return &Text{core: core, cfg: cfg, eff: eff}
}

func (p *Text) Kind() string { return "text" }

func (p *Text) Convert(ctx context.Context, slot *Slot, file string) error {
	c := p.core
	id, occ, proceed, err := c.begin(ctx, slot, "text", file, p.eff.CanSkip, p.eff.Delete)
	if err != nil || !proceed {
		return err
	}

	existing, err := c.Catalog.Lookup(ctx, id)
	if err == nil {
		return c.mergeExisting(ctx, "text", slot, existing, p.eff.DropTags, p.eff.Delete)
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	if occ.Size < p.cfg.Minimum || (p.cfg.Maximum > 0 && occ.Size > p.cfg.Maximum) {
		c.Stats.AddSkipped("text")
		c.emit("skipped", "text", file)
		c.logger("text").Debug().Str("file", file).Int64("size", occ.Size).Msg("outside size bounds")
		return nil
	}

	dir, stem := shardPaths(p.eff.Save, id)
	output := filepath.Join(dir, stem+"."+occ.Extension) + compressionSuffix(p.cfg.Compression)
	if err := ensureDir(dir); err != nil {
		return err
	}

	raw, err := os.ReadFile(file) // #nosec G304 -- paths come from the scanner
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	text := string(raw)

	rec := c.newRecord(catalog.KindText, id, occ)
	if p.Processor != nil {
		text = p.Processor(rec, text)
	}

	// the canonical fingerprint covers the processed text, which only
	// diverges from the source when a processor rewrote it
	canonical := id
	if text != string(raw) {
		canonical, err = p.hashText(ctx, dir, stem, text)
		if err != nil {
			removeIfEmpty(dir)
			return err
		}
	}
	if canonical != id {
		if prior, err := c.Catalog.Lookup(ctx, canonical); err == nil {
			// the source is a variant of an already stored canonical text
			removeIfEmpty(dir)
			return c.mergeExisting(ctx, "text", slot, prior, p.eff.DropTags, p.eff.Delete)
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return err
		}
	}
	rec.Hash = canonical

	rec.Description = p.describe(text)

	if err := c.Search.Index(ctx, textIndex, rec.ID, search.Body{
		"name":        rec.Name,
		"description": rec.Description,
		"contents":    text,
	}); err != nil {
		c.logger("text").Warn().Err(err).Str("id", rec.ID).Msg("search index write failed")
	}
	if err := c.Search.Refresh(ctx, textIndex); err != nil {
		c.logger("text").Warn().Err(err).Msg("search refresh failed")
	}

	if err := p.store(output, text); err != nil {
		removeQuiet(output)
		removeIfEmpty(dir)
		return err
	}
	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("stat %s: %w", output, err)
	}
	rec.Size = info.Size()
	rec.Relative = filepath.Join(id[:2], filepath.Base(output))
	rec.Compression = normalizeCompression(p.cfg.Compression)

	return c.finish(ctx, "text", slot, rec, p.eff.DropTags, p.eff.Delete)
}

// hashText fingerprints the processed text by spooling it to a temporary
// file next to the canonical output.
func (p *Text) hashText(ctx context.Context, dir, stem, text string) (string, error) {
	tmp := filepath.Join(dir, stem+".hash.tmp")
	if err := os.WriteFile(tmp, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("spool %s: %w", tmp, err)
	}
	defer removeQuiet(tmp)
	return p.core.Hasher.Sum(ctx, tmp)
}

// describe builds the record description, via the summarizer when one is
// configured, otherwise from the leading text.
func (p *Text) describe(text string) string {
	if p.cfg.Summarize > 0 && p.Summarizer != nil {
		return p.Summarizer(normalizeASCII(text), p.cfg.Summarize)
	}
	fallback := p.cfg.SummaryFallback
	if fallback <= 0 {
		fallback = 256
	}
	r := []rune(strings.TrimSpace(text))
	if len(r) > fallback {
		r = r[:fallback]
	}
	return string(r)
}

// store writes the text through the configured compressor.
func (p *Text) store(output, text string) error {
	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, p.eff.Mode) // #nosec G304
	if err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	switch p.cfg.Compression {
	case "brotli":
		w := brotli.NewWriter(f)
		if _, err = w.Write([]byte(text)); err == nil {
			err = w.Close()
		}
	case "gzip":
		w := gzip.NewWriter(f)
		if _, err = w.Write([]byte(text)); err == nil {
			err = w.Close()
		}
	default:
		_, err = f.WriteString(text)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	return nil
}

func compressionSuffix(compression string) string {
	switch compression {
	case "brotli":
		return ".br"
	case "gzip":
		return ".gz"
	default:
		return ""
	}
}

func normalizeCompression(compression string) string {
	switch compression {
	case "brotli", "gzip":
		return compression
	default:
		return ""
	}
}

// asciiFold strips diacritics and drops the remaining non-ASCII runes.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeASCII collapses whitespace runs to single spaces and reduces the
// text to printable ASCII, the form summarizers expect.
func normalizeASCII(text string) string {
	folded, _, err := transform.String(asciiFold, text)
	if err != nil {
		folded = text
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
