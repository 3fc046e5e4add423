// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryCatalog is an in-memory Catalog intended for tests and dry runs.
// Not durable.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemory() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[string]*Record)}
}

func (m *MemoryCatalog) Close() error { return nil }

func (m *MemoryCatalog) Lookup(ctx context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tombstone *Record
	for _, id := range m.sortedIDs() {
		rec := m.records[id]
		if rec.ID != key && rec.Hash != key && !rec.HasSource(key) {
			continue
		}
		if rec.Deleted {
			if tombstone == nil {
				tombstone = rec
			}
			continue
		}
		return clone(rec), nil
	}
	if tombstone != nil {
		return clone(tombstone), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryCatalog) LookupByFile(ctx context.Context, file string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.sortedIDs() {
		rec := m.records[id]
		if rec.Deleted {
			continue
		}
		for _, occ := range rec.Metadata.Occurrences {
			if occ.File == file {
				return clone(rec), nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryCatalog) Insert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("insert %s: record exists", rec.ID)
	}
	m.records[rec.ID] = clone(rec)
	return nil
}

func (m *MemoryCatalog) Replace(ctx context.Context, id string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID != id {
		return fmt.Errorf("replace %s: record id %s does not match", id, rec.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = clone(rec)
	return nil
}

// Len reports the number of stored records.
func (m *MemoryCatalog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryCatalog) sortedIDs() []string {
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clone(rec *Record) *Record {
	buf, _ := json.Marshal(rec)
	var out Record
	_ = json.Unmarshal(buf, &out)
	return &out
}
