// SPDX-License-Identifier: MIT

// Package search provides the optional full-text index updated alongside the
// catalog. Text records index their contents; video records index name,
// description and, separately, extracted subtitles.
package search

import "context"

// Body is one document, column name to text.
type Body map[string]string

// Index is the abstract full-text index.
type Index interface {
	// Index upserts the document under docID in the named logical index.
	Index(ctx context.Context, index, docID string, body Body) error
	// Refresh makes previous writes to the named index visible to queries.
	Refresh(ctx context.Context, index string) error
	Close() error
}

// Noop satisfies Index when full-text search is disabled.
type Noop struct{}

func (Noop) Index(ctx context.Context, index, docID string, body Body) error { return nil }
func (Noop) Refresh(ctx context.Context, index string) error                 { return nil }
func (Noop) Close() error                                                    { return nil }
