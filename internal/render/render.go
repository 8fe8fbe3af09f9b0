// Package render turns converted Obsidian pages into HTML previews.
package render

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/starford/wikiport/internal/syntax"
)

// DefaultLinkBase prefixes the href of rendered wiki links.
const DefaultLinkBase = "/pages/"

// Option configures a Renderer.
type Option func(*Renderer)

// WithLinkBase sets the prefix used for wiki link targets.
func WithLinkBase(base string) Option {
	return func(r *Renderer) {
		r.linkBase = base
	}
}

// WithHardWraps renders single newlines as <br>.
func WithHardWraps(enabled bool) Option {
	return func(r *Renderer) {
		r.hardWraps = enabled
	}
}

// Renderer is stateless after construction and safe for concurrent use.
type Renderer struct {
	linkBase  string
	hardWraps bool
	md        goldmark.Markdown
}

// New builds a renderer with GFM, task lists and heading IDs. Raw HTML in
// pages is not passed through.
func New(opts ...Option) *Renderer {
	r := &Renderer{linkBase: DefaultLinkBase}
	for _, opt := range opts {
		opt(r)
	}

	var rendererOptions []renderer.Option
	if r.hardWraps {
		rendererOptions = append(rendererOptions, html.WithHardWraps())
	}
	r.md = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.TaskList),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(rendererOptions...),
	)
	return r
}

// HTML renders an Obsidian page body. The frontmatter block is dropped and
// [[Target|shown]] links become ordinary links under the link base.
func (r *Renderer) HTML(text string) ([]byte, error) {
	if fm, ok := syntax.FindFrontmatter(text); ok {
		text = text[fm.End:]
	}
	text = syntax.Replace(text, syntax.Obsidian{}.Link(), r.wikiLink)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return nil, fmt.Errorf("render: convert: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) wikiLink(m syntax.Match) string {
	target := m.Group(0)
	shown := target
	inner := strings.TrimSuffix(strings.TrimPrefix(m.Text, "[["), "]]")
	if i := strings.IndexByte(inner, '|'); i >= 0 {
		if s := strings.TrimSpace(inner[i+1:]); s != "" {
			shown = s
		}
	}

	name, anchor, _ := strings.Cut(target, "#")
	href := r.linkBase + url.PathEscape(strings.TrimSpace(name))
	if anchor != "" {
		href += "#" + url.PathEscape(headingID(anchor))
	}
	return "[" + escapeLabel(shown) + "](<" + href + ">)"
}

// headingID approximates goldmark's auto heading ids for ASCII headings.
func headingID(s string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		case c == ' ':
			b.WriteByte('-')
		}
	}
	return b.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)

func escapeLabel(s string) string { return labelEscaper.Replace(s) }
