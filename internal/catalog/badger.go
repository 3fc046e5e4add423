// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//   rec:<id>            -> JSON record
//   src:<fp>\x00<id>    -> nil (secondary index over the sources set)
//   occ:<file>\x00<id>  -> nil (secondary index over occurrence files)
//
// The \x00 separator cannot occur in fingerprints or file paths, so prefix
// scans are unambiguous.
const (
	prefixRecord = "rec:"
	prefixSource = "src:"
	prefixFile   = "occ:"
	sep          = "\x00"
)

// BadgerCatalog persists records in a local Badger key-value store.
type BadgerCatalog struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the catalog database at path.
func OpenBadger(path string) (*BadgerCatalog, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &BadgerCatalog{db: db}, nil
}

func (c *BadgerCatalog) Close() error { return c.db.Close() }

func recordKey(id string) []byte   { return []byte(prefixRecord + id) }
func sourceKey(fp, id string) []byte {
	return []byte(prefixSource + fp + sep + id)
}
func fileKey(file, id string) []byte {
	return []byte(prefixFile + file + sep + id)
}

func (c *BadgerCatalog) Lookup(ctx context.Context, key string) (*Record, error) {
	var out *Record
	err := c.db.View(func(txn *badger.Txn) error {
		ids, err := idsByPrefix(txn, prefixSource+key+sep)
		if err != nil {
			return err
		}
		// id and hash are always members of sources, so the source index
		// covers direct id/hash lookups as well. Fall back to a direct get
		// for records written before their index keys (should not happen,
		// but a dangling direct key beats a miss).
		if len(ids) == 0 {
			rec, err := getRecord(txn, key)
			if err != nil {
				return err
			}
			out = rec
			return nil
		}
		sort.Strings(ids)
		var tombstone *Record
		for _, id := range ids {
			rec, err := getRecord(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue // stale index key
			}
			if err != nil {
				return err
			}
			if rec.Deleted {
				if tombstone == nil {
					tombstone = rec
				}
				continue
			}
			out = rec
			return nil
		}
		out = tombstone
		if out == nil {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BadgerCatalog) LookupByFile(ctx context.Context, file string) (*Record, error) {
	var out *Record
	err := c.db.View(func(txn *badger.Txn) error {
		ids, err := idsByPrefix(txn, prefixFile+file+sep)
		if err != nil {
			return err
		}
		sort.Strings(ids)
		for _, id := range ids {
			rec, err := getRecord(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rec.Deleted {
				continue
			}
			out = rec
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BadgerCatalog) Insert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(rec.ID)); err == nil {
			return fmt.Errorf("insert %s: record exists", rec.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(recordKey(rec.ID), buf); err != nil {
			return err
		}
		return writeIndexKeys(txn, rec)
	})
}

func (c *BadgerCatalog) Replace(ctx context.Context, id string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID != id {
		return fmt.Errorf("replace %s: record id %s does not match", id, rec.ID)
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		old, err := getRecord(txn, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if old != nil {
			if err := dropIndexKeys(txn, old); err != nil {
				return err
			}
		}
		if err := txn.Set(recordKey(id), buf); err != nil {
			return err
		}
		return writeIndexKeys(txn, rec)
	})
}

func writeIndexKeys(txn *badger.Txn, rec *Record) error {
	for _, fp := range rec.Sources {
		if err := txn.Set(sourceKey(fp, rec.ID), nil); err != nil {
			return err
		}
	}
	for _, occ := range rec.Metadata.Occurrences {
		if err := txn.Set(fileKey(occ.File, rec.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func dropIndexKeys(txn *badger.Txn, rec *Record) error {
	for _, fp := range rec.Sources {
		if err := txn.Delete(sourceKey(fp, rec.ID)); err != nil {
			return err
		}
	}
	for _, occ := range rec.Metadata.Occurrences {
		if err := txn.Delete(fileKey(occ.File, rec.ID)); err != nil {
			return err
		}
	}
	return nil
}

func getRecord(txn *badger.Txn, id string) (*Record, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func idsByPrefix(txn *badger.Txn, prefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		ids = append(ids, key[len(prefix):])
	}
	return ids, nil
}
