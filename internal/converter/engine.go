// Package converter rewrites WikidPad markup into Obsidian markup and drives
// batch conversion of a whole wiki.
package converter

import (
	"regexp"
	"strings"

	"github.com/starford/wikiport/internal/syntax"
)

var (
	spaceRunRe      = regexp.MustCompile(` {2,}`)
	trailingSpaceRe = regexp.MustCompile(` +(\r?\n)`)
)

// Engine converts the text of a single page. It is safe for concurrent use.
type Engine struct {
	source       syntax.Definition
	categoryTags bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCategoryTags enables rewriting CategoryName words into #Name tags.
func WithCategoryTags(enabled bool) EngineOption {
	return func(e *Engine) {
		e.categoryTags = enabled
	}
}

// NewEngine returns an engine reading WikidPad markup.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{source: syntax.WikidPad{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ConvertContent rewrites one page. The steps run in a fixed order: tags and
// attributes are rewritten before links so that neither is ever taken for a
// bracketed link.
func (e *Engine) ConvertContent(text string) string {
	if text == "" {
		return text
	}

	front, body := splitFrontmatter(text)
	body, aliases := e.extractAliases(body)
	body = e.convertHeaders(body)
	body = e.convertTags(body)
	body = e.convertAttributes(body)
	body = e.convertLinks(body)

	if len(aliases) == 0 {
		return front + body
	}
	return mergeAliases(front, aliases, newline(front+body)) + body
}

func splitFrontmatter(text string) (front, body string) {
	fm, ok := syntax.FindFrontmatter(text)
	if !ok {
		return "", text
	}
	return text[:fm.End], text[fm.End:]
}

// extractAliases removes [alias:x] constructs and returns their names in
// order of appearance. Blank names are removed but not returned. Lines left
// blank by the removal are dropped.
func (e *Engine) extractAliases(body string) (string, []string) {
	matches := e.source.Alias().FindAll(body)
	if len(matches) == 0 {
		return body, nil
	}

	seen := make(map[string]struct{}, len(matches))
	var aliases []string
	for _, m := range matches {
		name := m.Group(0)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		aliases = append(aliases, name)
	}

	var b strings.Builder
	b.Grow(len(body))
	last := 0
	for i := 0; i < len(matches); {
		start := strings.LastIndexByte(body[:matches[i].Start], '\n') + 1
		end := len(body)
		if nl := strings.IndexByte(body[matches[i].Start:], '\n'); nl >= 0 {
			end = matches[i].Start + nl
		}

		var line strings.Builder
		pos := start
		for ; i < len(matches) && matches[i].Start < end; i++ {
			line.WriteString(body[pos:matches[i].Start])
			pos = matches[i].End
		}
		line.WriteString(body[pos:end])

		b.WriteString(body[last:start])
		if strings.TrimSpace(line.String()) == "" {
			last = end
			if end < len(body) {
				last++
			}
			continue
		}
		b.WriteString(line.String())
		last = end
	}
	b.WriteString(body[last:])

	return trimLeadingBlankLines(b.String()), aliases
}

func trimLeadingBlankLines(s string) string {
	for {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 || strings.TrimSpace(s[:nl]) != "" {
			return s
		}
		s = s[nl+1:]
	}
}

// convertHeaders turns N leading '+' markers into N '#' characters.
func (e *Engine) convertHeaders(body string) string {
	return syntax.Replace(body, e.source.Header(), func(m syntax.Match) string {
		return strings.Repeat("#", len(m.Group(0))) + " " + m.Group(1)
	})
}

// convertTags turns [tag:a b] into "#a-b " and, when enabled, CategoryX into
// #X. Every run of spaces is then collapsed to one and trailing spaces are
// stripped.
func (e *Engine) convertTags(body string) string {
	body = syntax.Replace(body, e.source.Tag(), func(m syntax.Match) string {
		return "#" + strings.ReplaceAll(m.Group(0), " ", "-") + " "
	})
	if e.categoryTags {
		body = syntax.Replace(body, e.source.Category(), func(m syntax.Match) string {
			return "#" + m.Group(0)
		})
	}
	body = spaceRunRe.ReplaceAllString(body, " ")
	body = trailingSpaceRe.ReplaceAllString(body, "$1")
	return strings.TrimRight(body, " ")
}

func (e *Engine) convertAttributes(body string) string {
	return syntax.Replace(body, e.source.Attribute(), func(m syntax.Match) string {
		return "[" + m.Group(0) + ":: " + m.Group(1) + "]"
	})
}

// convertLinks wraps [single bracket] links first, then bare auto-link words.
func (e *Engine) convertLinks(body string) string {
	wrap := func(m syntax.Match) string { return "[[" + m.Group(0) + "]]" }
	body = syntax.Replace(body, e.source.Link(), wrap)
	return syntax.Replace(body, e.source.AutoLink(), wrap)
}

func newline(text string) string {
	if strings.Contains(text, "\r\n") {
		return "\r\n"
	}
	return "\n"
}
