// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("record not found")

// Catalog is the record store the pipelines run against. Implementations must
// be safe for concurrent use.
//
// Lookup matches key against id, hash and the sources set. Live records are
// preferred over soft-deleted ones so that tombstones do not shadow a
// re-indexed duplicate.
type Catalog interface {
	Lookup(ctx context.Context, key string) (*Record, error)
	// LookupByFile matches a record owning an occurrence with the given
	// absolute file path. Used by the skip check.
	LookupByFile(ctx context.Context, file string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
	// Replace overwrites the record stored under id.
	Replace(ctx context.Context, id string, rec *Record) error
	Close() error
}
