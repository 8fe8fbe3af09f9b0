// Package syntax holds the markup pattern matchers of the supported wiki dialects.
package syntax

import (
	"regexp"
	"strings"
)

// Match is one occurrence of a construct in a text. Start and End are byte
// offsets of the full span; Groups holds the captured sub-fields.
type Match struct {
	Start  int
	End    int
	Text   string
	Groups []string
}

// Group returns the i-th captured field or "" when it is absent.
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}
	return m.Groups[i]
}

// Matcher finds every occurrence of one construct. Matches are returned in
// text order and never overlap.
type Matcher interface {
	FindAll(text string) []Match
}

// MatcherFunc adapts a plain function to Matcher.
type MatcherFunc func(text string) []Match

// FindAll calls f(text).
func (f MatcherFunc) FindAll(text string) []Match { return f(text) }

// None never matches. Dialects expose it for constructs they lack.
var None Matcher = MatcherFunc(func(string) []Match { return nil })

// regexMatcher runs a compiled pattern and drops the matches keep rejects.
// keep receives the submatch index slice of the candidate. Groups are
// trimmed unless verbatim is set.
type regexMatcher struct {
	re       *regexp.Regexp
	keep     func(text string, loc []int) bool
	verbatim bool
}

func (m regexMatcher) FindAll(text string) []Match {
	locs := m.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		if m.keep != nil && !m.keep(text, loc) {
			continue
		}
		out = append(out, newMatch(text, loc, !m.verbatim))
	}
	return out
}

func newMatch(text string, loc []int, trim bool) Match {
	groups := make([]string, 0, len(loc)/2-1)
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		g := text[loc[i]:loc[i+1]]
		if trim {
			g = strings.TrimSpace(g)
		}
		groups = append(groups, g)
	}
	return Match{
		Start:  loc[0],
		End:    loc[1],
		Text:   text[loc[0]:loc[1]],
		Groups: groups,
	}
}

// Replace rewrites every match of m in text with the value returned by fn.
func Replace(text string, m Matcher, fn func(Match) string) string {
	matches := m.FindAll(text)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 2*len(matches))
	last := 0
	for _, mt := range matches {
		b.WriteString(text[last:mt.Start])
		b.WriteString(fn(mt))
		last = mt.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Remove deletes every match of m from text and reports what was removed.
func Remove(text string, m Matcher) (string, []Match) {
	matches := m.FindAll(text)
	if len(matches) == 0 {
		return text, nil
	}
	return Replace(text, m, func(Match) string { return "" }), matches
}

func precededBy(text string, pos int, chars string) bool {
	return pos > 0 && strings.IndexByte(chars, text[pos-1]) >= 0
}

func followedBy(text string, pos int, chars string) bool {
	return pos < len(text) && strings.IndexByte(chars, text[pos]) >= 0
}

func isTagByte(c byte) bool {
	return c == '-' || c == '_' ||
		('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// inHashTag reports whether pos sits inside a #tag token.
func inHashTag(text string, pos int) bool {
	i := pos
	for i > 0 && isTagByte(text[i-1]) {
		i--
	}
	return i > 0 && text[i-1] == '#'
}

// spans returns the [start, end) ranges matched by re.
func spans(re *regexp.Regexp, text string) [][]int {
	return re.FindAllStringIndex(text, -1)
}

func within(ranges [][]int, start, end int) bool {
	for _, r := range ranges {
		if start < r[1] && end > r[0] {
			return true
		}
	}
	return false
}
