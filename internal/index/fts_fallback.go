//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE on the pages table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error {
	// Body is already stored in the pages table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search over names, aliases, tags and bodies.
// Name hits rank first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, name, substr(body, 1, 200)
		FROM pages
		WHERE name LIKE ?1 OR aliases LIKE ?1 OR tags LIKE ?1 OR body LIKE ?1
		ORDER BY (name LIKE ?1) DESC, name COLLATE NOCASE
		LIMIT ?2
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Name, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
