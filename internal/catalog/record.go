// SPDX-License-Identifier: MIT

// Package catalog defines the canonical record model and the persistent
// record store keyed by content fingerprint.
package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind names the media class of a record.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
	KindVideo Kind = "video"
)

// Occurrence is one filesystem observation of a work.
type Occurrence struct {
	ID        string `json:"id"`
	File      string `json:"file"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp"` // source mtime, unix ms
}

// NewOccurrence builds an occurrence for a fingerprinted file.
func NewOccurrence(id, file string, size int64, mtime time.Time) Occurrence {
	name := filepath.Base(file)
	ext := strings.TrimPrefix(filepath.Ext(file), ".")
	return Occurrence{
		ID:        id,
		File:      file,
		Path:      filepath.Dir(file),
		Name:      strings.TrimSuffix(name, filepath.Ext(file)),
		Extension: ext,
		Size:      size,
		Timestamp: mtime.UnixMilli(),
	}
}

// Sound summarises the audio level analysis of a video.
type Sound struct {
	Silent bool    `json:"silent"`
	Mean   float64 `json:"mean"`
	Max    float64 `json:"max"`
}

// SilentSound is the sentinel used when sound checking is disabled or the
// detector output is unparsable.
func SilentSound() *Sound {
	return &Sound{Silent: true, Mean: -91, Max: -91}
}

// Metadata carries user-facing state and the occurrence history.
type Metadata struct {
	Created     int64        `json:"created"` // source mtime, unix ms
	Added       int64        `json:"added"`
	Updated     int64        `json:"updated"`
	Occurrences []Occurrence `json:"occurrences"`
	Series      string       `json:"series,omitempty"`
	Views       int          `json:"views"`
	Stars       int          `json:"stars"`
	Favorited   bool         `json:"favorited"`
	Reviewed    bool         `json:"reviewed"`
	Private     bool         `json:"private"`
	Tags        []string     `json:"tags"`
}

// Record is the canonical catalog entity for a unique work.
//
// ID is the fingerprint of the original source bytes; Hash is the fingerprint
// of the canonical converted output. For image and text the two are equal.
type Record struct {
	ID          string   `json:"id"`
	Object      Kind     `json:"object"`
	Version     string   `json:"version"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Hash        string   `json:"hash"`
	Sources     []string `json:"sources"`
	Relative    string   `json:"relative"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Preview     string   `json:"preview,omitempty"`
	Subtitles   string   `json:"subtitles,omitempty"`
	Size        int64    `json:"size"`
	Duration    float64  `json:"duration,omitempty"`
	Aspect      float64  `json:"aspect,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	Sound       *Sound   `json:"sound,omitempty"`
	Compression string   `json:"compression,omitempty"`
	Metadata    Metadata `json:"metadata"`
	Deleted     bool     `json:"deleted"`
}

// RebuildSources recomputes the sources set as
// {id, hash} ∪ {occurrence ids}, preserving first-seen order.
func (r *Record) RebuildSources() {
	seen := make(map[string]struct{}, len(r.Sources)+2)
	sources := make([]string, 0, len(r.Sources)+2)
	add := func(fp string) {
		if fp == "" {
			return
		}
		if _, ok := seen[fp]; ok {
			return
		}
		seen[fp] = struct{}{}
		sources = append(sources, fp)
	}
	add(r.ID)
	add(r.Hash)
	for _, occ := range r.Metadata.Occurrences {
		add(occ.ID)
	}
	r.Sources = sources
}

// AddOccurrence appends occ unless an occurrence with the same file is
// already present. It reports whether the list changed.
func (r *Record) AddOccurrence(occ Occurrence) bool {
	for _, existing := range r.Metadata.Occurrences {
		if existing.File == occ.File {
			return false
		}
	}
	r.Metadata.Occurrences = append(r.Metadata.Occurrences, occ)
	return true
}

// HasSource reports whether fp is in the sources set.
func (r *Record) HasSource(fp string) bool {
	for _, s := range r.Sources {
		if s == fp {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants every stored record must hold.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if r.Hash == "" {
		return fmt.Errorf("record %s has no hash", r.ID)
	}
	if !r.HasSource(r.ID) {
		return fmt.Errorf("record %s: id not in sources", r.ID)
	}
	if !r.HasSource(r.Hash) {
		return fmt.Errorf("record %s: hash not in sources", r.ID)
	}
	files := make(map[string]struct{}, len(r.Metadata.Occurrences))
	for _, occ := range r.Metadata.Occurrences {
		if !r.HasSource(occ.ID) {
			return fmt.Errorf("record %s: occurrence %s not in sources", r.ID, occ.ID)
		}
		if _, dup := files[occ.File]; dup {
			return fmt.Errorf("record %s: duplicate occurrence file %s", r.ID, occ.File)
		}
		files[occ.File] = struct{}{}
	}
	return nil
}

// Shard returns the two-character shard prefix and the remainder of the id,
// the on-disk layout being save/<id[0:2]>/<id[2:]>.<ext>.
func (r *Record) Shard() (dir, rest string) {
	if len(r.ID) < 2 {
		return r.ID, ""
	}
	return r.ID[:2], r.ID[2:]
}
