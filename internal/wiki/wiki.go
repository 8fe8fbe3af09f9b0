// Package wiki enumerates the pages of a wiki folder for one dialect.
package wiki

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/page"
	"github.com/starford/wikiport/internal/syntax"
)

// DataDir is the WikidPad subfolder that holds page files.
const DataDir = "data"

// Wiki is a folder of pages written in one dialect. Pages are discovered on
// every call; nothing is cached.
type Wiki struct {
	root      string
	pageRoot  string
	recursive bool
	def       syntax.Definition
}

// Open opens the wiki rooted at root for dialect d.
func Open(root string, d syntax.Dialect) (*Wiki, error) {
	def, err := syntax.ForDialect(d)
	if err != nil {
		return nil, err
	}
	if err := checkDir(root); err != nil {
		return nil, err
	}
	w := &Wiki{root: root, pageRoot: root, def: def}
	switch d {
	case syntax.DialectWikidPad:
		data := filepath.Join(root, DataDir)
		if info, err := os.Stat(data); err == nil && info.IsDir() {
			w.pageRoot = data
		}
	case syntax.DialectObsidian:
		w.recursive = true
	}
	return w, nil
}

// OpenWikidPad opens a WikidPad wiki. Pages are read from root/data when it
// exists, otherwise from root itself, without descending into subfolders.
func OpenWikidPad(root string) (*Wiki, error) {
	return Open(root, syntax.DialectWikidPad)
}

// OpenObsidian opens an Obsidian vault. Pages are read recursively.
func OpenObsidian(root string) (*Wiki, error) {
	return Open(root, syntax.DialectObsidian)
}

func checkDir(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("wiki: root %s: %w", root, apperr.ErrNotFound)
		}
		return fmt.Errorf("wiki: stat %s: %w: %w", root, apperr.ErrIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("wiki: root %s is not a directory: %w", root, apperr.ErrNotFound)
	}
	return nil
}

// Root is the folder the wiki was opened with.
func (w *Wiki) Root() string { return w.root }

// PageRoot is the folder pages are read from.
func (w *Wiki) PageRoot() string { return w.pageRoot }

// Definition is the dialect of the wiki's pages.
func (w *Wiki) Definition() syntax.Definition { return w.def }

// Pages lists every page of the wiki ordered by path.
func (w *Wiki) Pages() ([]*page.Page, error) {
	paths, err := w.pagePaths()
	if err != nil {
		return nil, err
	}
	out := make([]*page.Page, 0, len(paths))
	for _, p := range paths {
		pg, err := page.New(p, w.def)
		if err != nil {
			// Removed between listing and opening.
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, pg)
	}
	return out, nil
}

func (w *Wiki) pagePaths() ([]string, error) {
	ext := w.def.Extension()
	if !w.recursive {
		entries, err := os.ReadDir(w.pageRoot)
		if err != nil {
			return nil, fmt.Errorf("wiki: list %s: %w: %w", w.pageRoot, apperr.ErrIO, err)
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
				continue
			}
			out = append(out, filepath.Join(w.pageRoot, e.Name()))
		}
		return out, nil
	}

	var out []string
	err := filepath.WalkDir(w.pageRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != w.pageRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ext) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wiki: walk %s: %w: %w", w.pageRoot, apperr.ErrIO, err)
	}
	return out, nil
}

// Page returns the page called name. An exact match wins over a
// case-insensitive one.
func (w *Wiki) Page(name string) (*page.Page, error) {
	pages, err := w.Pages()
	if err != nil {
		return nil, err
	}
	var fold *page.Page
	for _, p := range pages {
		if p.Name() == name {
			return p, nil
		}
		if fold == nil && strings.EqualFold(p.Name(), name) {
			fold = p
		}
	}
	if fold != nil {
		return fold, nil
	}
	return nil, fmt.Errorf("wiki: page %q: %w", name, apperr.ErrNotFound)
}

// Search returns the pages whose content contains needle.
func (w *Wiki) Search(needle string) ([]*page.Page, error) {
	pages, err := w.Pages()
	if err != nil {
		return nil, err
	}
	var out []*page.Page
	for _, p := range pages {
		ok, err := p.ContainsText(needle)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}
