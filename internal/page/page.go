// Package page reads a single wiki page and derives structured views from it
// using the page's dialect.
package page

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/syntax"
)

const bom = "\uFEFF"

// Header is one heading of a page.
type Header struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// contentState is either unloaded (stale) or loaded with the page text.
type contentState interface {
	isContentState()
}

type unloaded struct{}

type loaded struct {
	text string
}

func (unloaded) isContentState() {}
func (loaded) isContentState()   {}

// Page is one file of a wiki. Its content is read lazily and cached until
// Invalidate is called.
type Page struct {
	path string
	name string
	def  syntax.Definition

	mu    sync.Mutex
	state contentState
}

// New binds the file at path to the dialect def.
func New(path string, def syntax.Definition) (*Page, error) {
	if !strings.EqualFold(filepath.Ext(path), def.Extension()) {
		return nil, fmt.Errorf("page: %s: expected %s file: %w", path, def.Extension(), apperr.ErrFormat)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("page: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("page: stat %s: %w: %w", path, apperr.ErrIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("page: %s is a directory: %w", path, apperr.ErrFormat)
	}
	base := filepath.Base(path)
	return &Page{
		path:  path,
		name:  strings.TrimSuffix(base, filepath.Ext(base)),
		def:   def,
		state: unloaded{},
	}, nil
}

// Name is the file name without its extension.
func (p *Page) Name() string { return p.name }

// Path is the file path the page was opened with.
func (p *Page) Path() string { return p.path }

// Definition is the dialect the page is read with.
func (p *Page) Definition() syntax.Definition { return p.def }

// Content reads the file, refreshes the cache and returns the text.
func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

// Invalidate marks the cached content as stale.
func (p *Page) Invalidate() {
	p.mu.Lock()
	p.state = unloaded{}
	p.mu.Unlock()
}

func (p *Page) load() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		p.state = unloaded{}
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("page: read %s: %w", p.path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("page: read %s: %w: %w", p.path, apperr.ErrIO, err)
	}
	text := strings.TrimPrefix(string(data), bom)
	p.state = loaded{text: text}
	return text, nil
}

// text returns the cached content, loading it when stale.
func (p *Page) text() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.state.(loaded); ok {
		return l.text, nil
	}
	return p.load()
}

// ContainsText reports whether the content holds needle (case-sensitive).
func (p *Page) ContainsText(needle string) (bool, error) {
	text, err := p.text()
	if err != nil {
		return false, err
	}
	return strings.Contains(text, needle), nil
}

// Headers returns the page headings in order.
func (p *Page) Headers() ([]Header, error) {
	text, err := p.text()
	if err != nil {
		return nil, err
	}
	return headers(p.def, text), nil
}

// Links returns bracketed link targets followed by auto-linked words.
// Duplicates are kept.
func (p *Page) Links() ([]string, error) {
	text, err := p.text()
	if err != nil {
		return nil, err
	}
	return links(p.def, text), nil
}

// Tags returns inline, category and frontmatter tags without duplicates,
// in first-seen order.
func (p *Page) Tags() ([]string, error) {
	text, err := p.text()
	if err != nil {
		return nil, err
	}
	return tags(p.def, text), nil
}

// Aliases returns the alternative names declared by the page.
func (p *Page) Aliases() ([]string, error) {
	text, err := p.text()
	if err != nil {
		return nil, err
	}
	return groupValues(p.def.Alias().FindAll(text)), nil
}

// Attributes merges inline attributes with frontmatter properties.
// Frontmatter wins on key collisions; tags and aliases are left out.
func (p *Page) Attributes() (map[string]string, error) {
	text, err := p.text()
	if err != nil {
		return nil, err
	}
	return attributes(p.def, text), nil
}

func headers(def syntax.Definition, text string) []Header {
	matches := def.Header().FindAll(text)
	out := make([]Header, 0, len(matches))
	for _, m := range matches {
		out = append(out, Header{Level: len(m.Group(0)), Text: m.Group(1)})
	}
	return out
}

func links(def syntax.Definition, text string) []string {
	out := groupValues(def.Link().FindAll(text))
	for i, l := range out {
		out[i] = strings.TrimSpace(l)
	}
	return append(out, groupValues(def.AutoLink().FindAll(text))...)
}

func tags(def syntax.Definition, text string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, m := range []syntax.Matcher{def.Tag(), def.Category(), def.FrontmatterTags()} {
		for _, name := range groupValues(m.FindAll(text)) {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func attributes(def syntax.Definition, text string) map[string]string {
	out := make(map[string]string)
	for _, m := range def.Attribute().FindAll(text) {
		out[m.Group(0)] = m.Group(1)
	}
	for _, m := range def.Property().FindAll(text) {
		key, value := m.Group(0), m.Group(1)
		if strings.EqualFold(key, "tags") || strings.EqualFold(key, "aliases") || value == "" {
			continue
		}
		out[key] = flattenValue(value)
	}
	return out
}

// flattenValue turns `[a, "b"]` into `a, b` and strips scalar quotes.
func flattenValue(v string) string {
	if len(v) >= 2 && v[0] == '[' && v[len(v)-1] == ']' {
		parts := strings.Split(v[1:len(v)-1], ",")
		items := make([]string, 0, len(parts))
		for _, part := range parts {
			if item := syntax.Unquote(strings.TrimSpace(part)); item != "" {
				items = append(items, item)
			}
		}
		return strings.Join(items, ", ")
	}
	return syntax.Unquote(v)
}

func groupValues(matches []syntax.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Group(0))
	}
	return out
}
