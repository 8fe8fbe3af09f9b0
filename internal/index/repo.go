package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/models"
	"github.com/starford/wikiport/internal/page"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	Path      string
	Name      string
	Checksum  string
	Headers   []page.Header
	Tags      []string
	Aliases   []string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// TagCount is a tag and the number of pages carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// GraphNode is one page of the link graph.
type GraphNode struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

const pageColumns = `path, name, checksum, headers, tags, aliases, updated_at`

// UpsertPage inserts or replaces a page, its FTS entry and its outgoing
// links within a transaction. Links are page names, not paths.
func (db *DB) UpsertPage(p PageRow, body string, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	headersJSON, _ := json.Marshal(nonNil(p.Headers))
	tagsJSON, _ := json.Marshal(nonNil(p.Tags))
	aliasesJSON, _ := json.Marshal(nonNil(p.Aliases))

	_, err = tx.Exec(`
		INSERT INTO pages (path, name, checksum, headers, tags, aliases, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name       = excluded.name,
			checksum   = excluded.checksum,
			headers    = excluded.headers,
			tags       = excluded.tags,
			aliases    = excluded.aliases,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, p.Path, p.Name, p.Checksum, string(headersJSON), string(tagsJSON), string(aliasesJSON), body, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}

	if err := ftsUpsert(tx, p.Path, p.Name, body, p.Tags); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, p.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(p.Path, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeletePage removes a page, its FTS entry and its outgoing links.
func (db *DB) DeletePage(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, path); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM pages WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete page: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a page, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM pages WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetPage returns the page stored at path.
func (db *DB) GetPage(path string) (*PageRow, error) {
	row := db.conn.QueryRow(`SELECT `+pageColumns+` FROM pages WHERE path = ?`, path)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: page %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get page: %w", err)
	}
	return p, nil
}

// GetPageByName resolves a link target: an exact name match first, then a
// case-insensitive name match, then a page declaring it as an alias.
func (db *DB) GetPageByName(name string) (*PageRow, error) {
	row := db.conn.QueryRow(`
		SELECT `+pageColumns+` FROM pages
		WHERE name = ?1 COLLATE NOCASE
		   OR EXISTS (SELECT 1 FROM json_each(pages.aliases) WHERE json_each.value = ?1 COLLATE NOCASE)
		ORDER BY (name = ?1) DESC, (name = ?1 COLLATE NOCASE) DESC, path
		LIMIT 1
	`, name)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: page %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get page by name: %w", err)
	}
	return p, nil
}

// ListPages returns pages ordered by name together with the total count.
// A non-empty tag restricts the result to pages carrying it.
func (db *DB) ListPages(limit, offset int, tag string) ([]PageRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	where := ""
	var args []any
	if tag != "" {
		where = `WHERE EXISTS (SELECT 1 FROM json_each(pages.tags) WHERE json_each.value = ? COLLATE NOCASE)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count pages: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+pageColumns+` FROM pages `+where+
		` ORDER BY name COLLATE NOCASE, path LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list pages: %w", err)
	}
	defer rows.Close()

	out := []PageRow{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("index: scan page: %w", err)
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// Tags returns every tag with its page count, most used first.
func (db *DB) Tags() ([]TagCount, error) {
	rows, err := db.conn.Query(`
		SELECT json_each.value, count(DISTINCT pages.path)
		FROM pages, json_each(pages.tags)
		GROUP BY json_each.value
		ORDER BY 2 DESC, 1
	`)
	if err != nil {
		return nil, fmt.Errorf("index: tags: %w", err)
	}
	defer rows.Close()

	out := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// AllPaths returns every indexed page path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums maps every indexed path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the paths of all pages linking to target. Targets are
// compared case-insensitively.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Graph returns every page and every link whose target resolves to an
// indexed page name. Link targets are reported as paths.
func (db *DB) Graph() ([]GraphNode, []models.Link, error) {
	rows, err := db.conn.Query(`SELECT path, name FROM pages ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	nodes := []GraphNode{}
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.Path, &n.Name); err != nil {
			rows.Close()
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.conn.Query(`
		SELECT DISTINCT l.source, p.path
		FROM links l JOIN pages p ON p.name = l.target COLLATE NOCASE
		ORDER BY l.source, p.path
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer rows.Close()
	edges := []models.Link{}
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Target); err != nil {
			return nil, nil, err
		}
		edges = append(edges, l)
	}
	return nodes, edges, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(s scanner) (*PageRow, error) {
	var p PageRow
	var headers, tags, aliases string
	if err := s.Scan(&p.Path, &p.Name, &p.Checksum, &headers, &tags, &aliases, &p.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(headers), &p.Headers)
	_ = json.Unmarshal([]byte(tags), &p.Tags)
	_ = json.Unmarshal([]byte(aliases), &p.Aliases)
	return &p, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
