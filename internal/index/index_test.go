package index

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/page"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "wikiport-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func row(path, name, cs string) PageRow {
	return PageRow{Path: path, Name: name, Checksum: cs, UpdatedAt: time.Now()}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages`).Scan(&count); err != nil {
		t.Fatalf("pages table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM links`).Scan(&count); err != nil {
		t.Fatalf("links table missing: %v", err)
	}
}

func TestUpsertAndGetPage(t *testing.T) {
	db := testDB(t)
	r := PageRow{
		Path:      "Home.md",
		Name:      "Home",
		Checksum:  "abc123",
		Headers:   []page.Header{{Level: 1, Text: "Home"}},
		Tags:      []string{"start"},
		Aliases:   []string{"Index"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertPage(r, "# Home\n[[Other]]", []string{"Other"}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	cs, err := db.GetChecksum("Home.md")
	if err != nil || cs != "abc123" {
		t.Errorf("GetChecksum = %q, %v", cs, err)
	}

	got, err := db.GetPage("Home.md")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if got.Name != "Home" || !reflect.DeepEqual(got.Tags, []string{"start"}) ||
		!reflect.DeepEqual(got.Aliases, []string{"Index"}) ||
		!reflect.DeepEqual(got.Headers, r.Headers) {
		t.Errorf("GetPage = %+v", got)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetPage("missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetPageByName("Missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetPageByName(t *testing.T) {
	db := testDB(t)
	a := row("a/Alpha.md", "Alpha", "1")
	a.Aliases = []string{"First"}
	_ = db.UpsertPage(a, "", nil)
	_ = db.UpsertPage(row("alpha.md", "alpha", "2"), "", nil)

	cases := map[string]string{
		"Alpha": "a/Alpha.md",
		"alpha": "alpha.md",
		"ALPHA": "a/Alpha.md",
		"first": "a/Alpha.md",
	}
	for name, want := range cases {
		got, err := db.GetPageByName(name)
		if err != nil {
			t.Fatalf("GetPageByName(%q): %v", name, err)
		}
		if got.Path != want {
			t.Errorf("GetPageByName(%q) = %s, want %s", name, got.Path, want)
		}
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("a.md", "a", "1"), "body", []string{"Target"})
	_ = db.UpsertPage(row("c.md", "c", "2"), "body", []string{"target"})

	bl, err := db.Backlinks("TARGET")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if !reflect.DeepEqual(bl, []string{"a.md", "c.md"}) {
		t.Errorf("backlinks = %v", bl)
	}
}

func TestDeletePage(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("del.md", "del", "x"), "body", []string{"Target"})

	if err := db.DeletePage("del.md"); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted page still has checksum %q", cs)
	}
	bl, _ := db.Backlinks("Target")
	if len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
}

func TestUpsertReplacesLinks(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("up.md", "up", "1"), "old body", []string{"X"})
	_ = db.UpsertPage(row("up.md", "up", "2"), "new body", []string{"Y"})

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	if bl, _ := db.Backlinks("X"); len(bl) != 0 {
		t.Error("old link should be removed on upsert")
	}
	if bl, _ := db.Backlinks("Y"); len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListPagesAndTags(t *testing.T) {
	db := testDB(t)
	for i, name := range []string{"Charlie", "alpha", "Bravo"} {
		r := row(name+".md", name, string(rune('1'+i)))
		r.Tags = []string{"all"}
		if name != "Bravo" {
			r.Tags = append(r.Tags, "odd")
		}
		_ = db.UpsertPage(r, "", nil)
	}

	pages, total, err := db.ListPages(2, 0, "")
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if total != 3 || len(pages) != 2 || pages[0].Name != "alpha" || pages[1].Name != "Bravo" {
		t.Errorf("ListPages = %+v total %d", pages, total)
	}

	pages, total, _ = db.ListPages(10, 0, "ODD")
	if total != 2 || len(pages) != 2 || pages[1].Name != "Charlie" {
		t.Errorf("ListPages(tag) = %+v total %d", pages, total)
	}

	tags, err := db.Tags()
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	want := []TagCount{{"all", 3}, {"odd", 2}}
	if !reflect.DeepEqual(tags, want) {
		t.Errorf("Tags = %v, want %v", tags, want)
	}
}

func TestGraph(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("a.md", "A", "1"), "", []string{"b", "Nowhere"})
	_ = db.UpsertPage(row("sub/b.md", "B", "2"), "", []string{"A"})

	nodes, links, err := db.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("nodes = %v", nodes)
	}
	if len(links) != 2 || links[0].Source != "a.md" || links[0].Target != "sub/b.md" {
		t.Errorf("links = %v", links)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("s.md", "Search Me", "1"), "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestLinkTargets(t *testing.T) {
	got := LinkTargets([]string{"Page#Section", "folder/Other.md", "page", "^block", "Third^id", " "})
	want := []string{"Page", "Other", "Third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LinkTargets = %v, want %v", got, want)
	}
}
