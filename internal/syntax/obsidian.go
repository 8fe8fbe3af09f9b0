package syntax

import "regexp"

var (
	obHeaderRe    = regexp.MustCompile(`(?m)^(#+)[ \t]+(\S[^\r\n]*)`)
	obLinkRe      = regexp.MustCompile(`\[\[([^\[\]|\r\n]+)(?:\|[^\[\]\r\n]*)?\]\]`)
	obTagRe       = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9_-]+)`)
	obAttributeRe = regexp.MustCompile(`\[([A-Za-z0-9_.-]+)::([^\[\]\r\n]*)\]`)
)

// Obsidian is the target dialect: "#" headers, [[double bracket]] links,
// #tags, [key:: value] attributes and YAML frontmatter.
type Obsidian struct{}

func (Obsidian) Dialect() Dialect  { return DialectObsidian }
func (Obsidian) Extension() string { return ".md" }

func (Obsidian) Header() Matcher {
	return MatcherFunc(func(text string) []Match {
		return inBody(text, regexMatcher{re: obHeaderRe})
	})
}

// Link captures the target of [[target]] and [[target|display]].
func (Obsidian) Link() Matcher     { return regexMatcher{re: obLinkRe} }
func (Obsidian) AutoLink() Matcher { return None }

// Tag matches #name at line start or after whitespace, outside the frontmatter.
// The match span starts at the '#'.
func (Obsidian) Tag() Matcher {
	return MatcherFunc(func(text string) []Match {
		matches := inBody(text, regexMatcher{re: obTagRe})
		for i := range matches {
			m := &matches[i]
			hash := m.End - len(m.Groups[0]) - 1
			m.Start, m.Text = hash, text[hash:m.End]
		}
		return matches
	})
}

func (Obsidian) Category() Matcher { return None }

// FrontmatterTags yields one match per entry of the "tags" key.
func (Obsidian) FrontmatterTags() Matcher {
	return MatcherFunc(func(text string) []Match { return listMatches(text, "tags") })
}

func (Obsidian) Attribute() Matcher { return regexMatcher{re: obAttributeRe} }

// Alias yields one match per entry of the "aliases" key.
func (Obsidian) Alias() Matcher {
	return MatcherFunc(func(text string) []Match { return listMatches(text, "aliases") })
}

func (Obsidian) Property() Matcher { return MatcherFunc(propertyMatches) }

// inBody runs m on the text after the frontmatter and shifts the offsets back.
func inBody(text string, m Matcher) []Match {
	offset := 0
	if fm, ok := FindFrontmatter(text); ok {
		offset = fm.End
	}
	matches := m.FindAll(text[offset:])
	if offset == 0 {
		return matches
	}
	for i := range matches {
		matches[i].Start += offset
		matches[i].End += offset
	}
	return matches
}
