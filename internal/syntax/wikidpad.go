package syntax

import (
	"regexp"
	"strings"
)

var (
	wpHeaderRe    = regexp.MustCompile(`(?m)^(\++)[ \t]*(\S[^\r\n]*)`)
	wpLinkRe      = regexp.MustCompile(`\[([^\[\]:=\r\n]+)\]`)
	wpAutoLinkRe  = regexp.MustCompile(`\b([A-Z]+[a-z]+[A-Z][A-Za-z0-9]*|[A-Z]{2,}[a-z][A-Za-z0-9]*)\b`)
	wpTagRe       = regexp.MustCompile(`\[tag:([^\[\]\r\n]+)\]`)
	wpCategoryRe  = regexp.MustCompile(`\bCategory([A-Z][A-Za-z0-9]*)\b`)
	wpAttributeRe = regexp.MustCompile(`\[([A-Za-z0-9_.-]+):([^\[\]\r\n]+)\]`)
	wpAliasRe     = regexp.MustCompile(`\[alias:([^\[\]\r\n]+)\]`)

	doubleBracketRe = regexp.MustCompile(`\[\[[^\[\]\r\n]*\]\]`)
)

// WikidPad is the source dialect: "+" headers, [single bracket] links,
// CamelCase auto-links, [tag:x] tags and [key: value] attributes.
type WikidPad struct{}

func (WikidPad) Dialect() Dialect  { return DialectWikidPad }
func (WikidPad) Extension() string { return ".wiki" }

func (WikidPad) Header() Matcher { return regexMatcher{re: wpHeaderRe} }

// Link matches [text] unless it touches another bracket. Text holding a
// colon or equals sign belongs to attributes and annotations. The text is
// kept as written, surrounding spaces included.
func (WikidPad) Link() Matcher {
	return regexMatcher{re: wpLinkRe, verbatim: true, keep: func(text string, loc []int) bool {
		if precededBy(text, loc[0], "[") || followedBy(text, loc[1], "]") {
			return false
		}
		return strings.TrimSpace(text[loc[2]:loc[3]]) != ""
	}}
}

// AutoLink matches bare mixed-case words outside brackets and #tags.
func (WikidPad) AutoLink() Matcher {
	return MatcherFunc(func(text string) []Match {
		var linked [][]int
		m := regexMatcher{re: wpAutoLinkRe, keep: func(text string, loc []int) bool {
			if precededBy(text, loc[0], "[") || followedBy(text, loc[1], "]") {
				return false
			}
			if inHashTag(text, loc[0]) {
				return false
			}
			if linked == nil {
				linked = spans(doubleBracketRe, text)
			}
			return !within(linked, loc[0], loc[1])
		}}
		return m.FindAll(text)
	})
}

func (WikidPad) Tag() Matcher      { return regexMatcher{re: wpTagRe} }
func (WikidPad) Category() Matcher { return regexMatcher{re: wpCategoryRe} }

func (WikidPad) FrontmatterTags() Matcher { return None }

// Attribute matches [key: value]. A doubled colon is the converted form and
// a value starting with "//" is a URL.
func (WikidPad) Attribute() Matcher {
	return regexMatcher{re: wpAttributeRe, keep: func(text string, loc []int) bool {
		switch strings.ToLower(text[loc[2]:loc[3]]) {
		case "tag", "alias":
			return false
		}
		value := text[loc[4]:loc[5]]
		if strings.HasPrefix(value, ":") || strings.HasPrefix(value, "//") {
			return false
		}
		return strings.TrimSpace(value) != ""
	}}
}

func (WikidPad) Alias() Matcher    { return regexMatcher{re: wpAliasRe} }
func (WikidPad) Property() Matcher { return None }
