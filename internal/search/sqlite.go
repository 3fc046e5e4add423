// SPDX-License-Identifier: MIT

package search

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

var indexName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SQLite implements Index on FTS5 virtual tables, one table per logical
// index. Documents carry fixed weighted columns: name, description, contents.
type SQLite struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]struct{}
}

// OpenSQLite opens (or creates) the search database at path.
func OpenSQLite(path string) (*SQLite, error) {
	// modernc driver: pragmas travel as _pragma=name(value) query params
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open search db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping search db: %w", err)
	}
	return &SQLite{db: db, tables: make(map[string]struct{})}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) ensureTable(ctx context.Context, index string) error {
	if !indexName.MatchString(index) {
		return fmt.Errorf("invalid index name %q", index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[index]; ok {
		return nil
	}
	schema := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS fts_%s USING fts5(
		doc_id UNINDEXED,
		name,
		description,
		contents
	)`, index)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	s.tables[index] = struct{}{}
	return nil
}

func (s *SQLite) Index(ctx context.Context, index, docID string, body Body) error {
	if err := s.ensureTable(ctx, index); err != nil {
		return err
	}
	// upsert: FTS5 has no unique constraints, delete then insert
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM fts_%s WHERE doc_id = ?`, index), docID); err != nil {
		return fmt.Errorf("index %s/%s: %w", index, docID, err)
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO fts_%s (doc_id, name, description, contents) VALUES (?, ?, ?, ?)`, index),
		docID, body["name"], body["description"], body["contents"])
	if err != nil {
		return fmt.Errorf("index %s/%s: %w", index, docID, err)
	}
	return nil
}

func (s *SQLite) Refresh(ctx context.Context, index string) error {
	if err := s.ensureTable(ctx, index); err != nil {
		return err
	}
	// writes are immediately visible; checkpoint the WAL so readers of the
	// database file see them too
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`)
	return err
}

// Query returns the doc ids matching the FTS5 query, best match first.
func (s *SQLite) Query(ctx context.Context, index, query string) ([]string, error) {
	if err := s.ensureTable(ctx, index); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc_id FROM fts_%s WHERE fts_%s MATCH ? ORDER BY rank`, index, index),
		query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
