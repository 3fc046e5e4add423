// SPDX-License-Identifier: MIT

// Package pipeline contains the per-type conversion state machines and the
// shared policy they run under: skip checks, fingerprint claims, duplicate
// merges and source deletion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediadex/mediadex/internal/bus"
	"github.com/mediadex/mediadex/internal/catalog"
	"github.com/mediadex/mediadex/internal/execx"
	"github.com/mediadex/mediadex/internal/hash"
	"github.com/mediadex/mediadex/internal/log"
	"github.com/mediadex/mediadex/internal/search"
	"github.com/mediadex/mediadex/internal/ui"
)

// Tagger decorates a record with tags before it is persisted. Called both on
// first insert and on duplicate merges.
type Tagger func(ctx context.Context, rec *catalog.Record) error

// DeletePolicy overrides the per-type delete flag when set; it decides
// per source file.
type DeletePolicy func(file string) bool

// Core bundles the collaborators every pipeline shares.
type Core struct {
	Catalog catalog.Catalog
	Search  search.Index
	Hasher  *hash.Hasher
	Exec    execx.Exec
	Slots   *SlotPool
	UI      ui.SlotUI
	Bus     *bus.Bus
	Stats   *Stats

	Tagger Tagger
	Delete DeletePolicy

	// Settle, when set, receives every source path whose content is safely
	// represented in the catalog: on skip, on insert and on duplicate merge.
	// Folded concurrent duplicates are settled by the owning conversion once
	// it persists them, never before.
	Settle func(file string)

	// Version is stamped into every new record.
	Version string
}

func (c *Core) settle(file string) {
	if c.Settle != nil {
		c.Settle(file)
	}
}

func (c *Core) logger(kind string) *zerolog.Logger {
	lg := log.WithComponent(kind)
	return &lg
}

func (c *Core) emit(topic, kind string, payload any) {
	if c.Bus != nil {
		c.Bus.Emit(topic+":"+kind, payload)
	}
}

// shouldDelete reports whether the source file is to be removed after
// conversion. A configured policy wins over the static flag.
func (c *Core) shouldDelete(file string, deleteFlag bool) bool {
	if c.Delete != nil {
		return c.Delete(file)
	}
	return deleteFlag
}

// skip reports whether file is already cataloged under exactly this path and
// may be left alone. Files destined for deletion are never skipped, so a
// re-run still cleans them up.
func (c *Core) skip(ctx context.Context, kind, file string, canSkip, deleteFlag bool) (bool, error) {
	if !canSkip || c.shouldDelete(file, deleteFlag) {
		return false, nil
	}
	_, err := c.Catalog.LookupByFile(ctx, file)
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.Stats.AddSkipped(kind)
	c.emit("skipped", kind, file)
	c.settle(file)
	return true, nil
}

// begin runs the common head of every conversion: the skip check, the
// source fingerprint and the in-flight claim. proceed is false when the file
// is fully handled here (skipped, or folded into a concurrent conversion of
// the same content).
func (c *Core) begin(ctx context.Context, slot *Slot, kind, file string, canSkip, deleteFlag bool) (id string, occ catalog.Occurrence, proceed bool, err error) {
	skipped, err := c.skip(ctx, kind, file, canSkip, deleteFlag)
	if err != nil || skipped {
		return "", catalog.Occurrence{}, false, err
	}

	info, err := os.Stat(file)
	if err != nil {
		return "", catalog.Occurrence{}, false, fmt.Errorf("stat %s: %w", file, err)
	}

	id, err = c.Hasher.Sum(ctx, file)
	if err != nil {
		return "", catalog.Occurrence{}, false, err
	}
	occ = catalog.NewOccurrence(id, file, info.Size(), info.ModTime())

	if !c.Slots.ClaimOrAppend(slot, id, occ) {
		// another slot is converting the same content right now; it persists
		// and settles this occurrence once its record lands. If it fails
		// instead, the file stays unsettled and a later run retries it.
		c.Stats.AddDuplicate(kind)
		c.emit("duplicate", kind, id)
		c.logger(kind).Debug().Str("file", file).Str("id", id).Msg("folded into in-flight conversion")
		return "", catalog.Occurrence{}, false, nil
	}
	return id, occ, true, nil
}

// duplicate merges a new occurrence into an existing record and re-persists
// it. The source file is deleted afterwards when policy says so.
func (c *Core) duplicate(ctx context.Context, kind string, rec *catalog.Record, occ catalog.Occurrence, dropTags, deleteFlag bool) error {
	rec.AddOccurrence(occ)
	rec.RebuildSources()
	c.tag(ctx, rec, dropTags)

	if err := c.Catalog.Replace(ctx, rec.ID, rec); err != nil {
		return fmt.Errorf("merge duplicate into %s: %w", rec.ID, err)
	}
	c.Stats.AddDuplicate(kind)
	c.emit("duplicate", kind, rec.ID)
	c.settle(occ.File)
	c.deleteSource(kind, occ.File, deleteFlag)
	return nil
}

// tag applies the tag hook and refreshes the updated timestamp.
func (c *Core) tag(ctx context.Context, rec *catalog.Record, dropTags bool) {
	if dropTags {
		rec.Metadata.Tags = rec.Metadata.Tags[:0]
	}
	if c.Tagger != nil {
		if err := c.Tagger(ctx, rec); err != nil {
			c.logger(string(rec.Object)).Warn().Err(err).Str("id", rec.ID).Msg("tag hook failed")
		}
	}
	if rec.Metadata.Tags == nil {
		rec.Metadata.Tags = []string{}
	}
	rec.Metadata.Updated = time.Now().UnixMilli()
}

// insert finalizes a freshly built record and announces it.
func (c *Core) insert(ctx context.Context, kind string, rec *catalog.Record, dropTags bool) error {
	rec.RebuildSources()
	c.tag(ctx, rec, dropTags)
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert %s: %w", rec.ID, err)
	}
	c.Stats.AddConverted(kind)
	c.emit("indexed", kind, rec.ID)
	return nil
}

// deleteSource removes the original file once its content is safely stored.
// Failure to delete is logged, not fatal.
func (c *Core) deleteSource(kind, file string, deleteFlag bool) {
	if !c.shouldDelete(file, deleteFlag) {
		return
	}
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		c.logger(kind).Warn().Err(err).Str("file", file).Msg("source delete failed")
		return
	}
	// prune the directory if the delete emptied it
	removeIfEmpty(filepath.Dir(file))
}

// newRecord seeds a record from the claimed occurrence. ID and Hash start
// equal; video overwrites Hash after transcoding.
func (c *Core) newRecord(kind catalog.Kind, id string, occ catalog.Occurrence) *catalog.Record {
	now := time.Now().UnixMilli()
	return &catalog.Record{
		ID:      id,
		Object:  kind,
		Version: c.Version,
		Name:    occ.Name,
		Hash:    id,
		Size:    occ.Size,
		Metadata: catalog.Metadata{
			Created:     occ.Timestamp,
			Added:       now,
			Updated:     now,
			Occurrences: []catalog.Occurrence{},
			Tags:        []string{},
		},
	}
}

// finish completes a fresh conversion: it adopts the slot's accumulated
// occurrences into the record (the claimed one first, folded concurrent
// duplicates after), persists it, then drops the slot's claim and folds in
// any occurrence that arrived during the write. Source files are settled and
// the delete policy applied only once the record holds them.
func (c *Core) finish(ctx context.Context, kind string, slot *Slot, rec *catalog.Record, dropTags, deleteFlag bool) error {
	occs := c.Slots.TakeOccurrences(slot)
	for _, occ := range occs {
		rec.AddOccurrence(occ)
	}
	if err := c.insert(ctx, kind, rec, dropTags); err != nil {
		return err
	}
	late, err := c.adoptLate(ctx, kind, slot, rec)
	if err != nil {
		return err
	}
	occs = append(occs, late...)
	for _, occ := range occs {
		c.settle(occ.File)
		c.deleteSource(kind, occ.File, deleteFlag)
	}
	return nil
}

// adoptLate releases the slot's claim and re-persists the record when
// duplicates folded in between the occurrence drain and the catalog write.
// After the claim is gone, new arrivals of the same content resolve against
// the catalog instead of the slot.
func (c *Core) adoptLate(ctx context.Context, kind string, slot *Slot, rec *catalog.Record) ([]catalog.Occurrence, error) {
	late := c.Slots.Unclaim(slot)
	if len(late) == 0 {
		return nil, nil
	}
	for _, occ := range late {
		rec.AddOccurrence(occ)
	}
	rec.RebuildSources()
	if err := c.Catalog.Replace(ctx, rec.ID, rec); err != nil {
		return nil, fmt.Errorf("merge late duplicates into %s: %w", rec.ID, err)
	}
	return late, nil
}

// mergeExisting folds everything the slot accumulated into an already
// cataloged record. Only the claimed occurrence counts as a duplicate here;
// folded occurrences were counted by the slots that yielded them.
func (c *Core) mergeExisting(ctx context.Context, kind string, slot *Slot, rec *catalog.Record, dropTags, deleteFlag bool) error {
	occs := c.Slots.TakeOccurrences(slot)
	if len(occs) == 0 {
		c.Slots.Unclaim(slot)
		return nil
	}
	for _, extra := range occs[1:] {
		rec.AddOccurrence(extra)
	}
	if err := c.duplicate(ctx, kind, rec, occs[0], dropTags, deleteFlag); err != nil {
		return err
	}
	late, err := c.adoptLate(ctx, kind, slot, rec)
	if err != nil {
		return err
	}
	for _, extra := range append(occs[1:], late...) {
		c.settle(extra.File)
		c.deleteSource(kind, extra.File, deleteFlag)
	}
	return nil
}
