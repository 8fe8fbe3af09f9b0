package syntax

import (
	"regexp"
	"strings"
)

var (
	frontmatterRe = regexp.MustCompile(`\A---[ \t]*\r?\n(?:([\s\S]*?)\r?\n)??---[ \t]*(?:\r?\n|\z)`)
	fmKeyRe       = regexp.MustCompile(`^([A-Za-z0-9_-]+):(?:[ \t]+|$)(.*)$`)
	fmItemRe      = regexp.MustCompile(`^[ \t]*-(?:[ \t]+(.*))?$`)
)

// Block locates the leading "---" delimited metadata section of a page.
type Block struct {
	// End is the offset just past the closing delimiter line.
	End        int
	InnerStart int
	InnerEnd   int
}

// FindFrontmatter reports the metadata block at the very start of text.
func FindFrontmatter(text string) (Block, bool) {
	loc := frontmatterRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return Block{}, false
	}
	b := Block{End: loc[1]}
	if loc[2] >= 0 {
		b.InnerStart, b.InnerEnd = loc[2], loc[3]
	} else {
		// Empty block: point both ends at the closing delimiter.
		b.InnerStart = strings.Index(text[3:], "---") + 3
		b.InnerEnd = b.InnerStart
	}
	return b, true
}

// span is a line within a text, excluding its line terminator.
type span struct{ start, end int }

func lineSpans(text string, from, to int) []span {
	var out []span
	for from < to {
		nl := strings.IndexByte(text[from:to], '\n')
		if nl < 0 {
			out = append(out, span{from, trimCR(text, from, to)})
			break
		}
		out = append(out, span{from, trimCR(text, from, from+nl)})
		from += nl + 1
	}
	return out
}

func trimCR(text string, start, end int) int {
	if end > start && text[end-1] == '\r' {
		return end - 1
	}
	return end
}

// blockItems collects the "- item" lines that directly follow a key line.
// It also reports how many lines the list occupies.
func blockItems(text string, lines []span) ([]Match, int) {
	var out []Match
	n := 0
	for _, l := range lines {
		loc := fmItemRe.FindStringSubmatchIndex(text[l.start:l.end])
		if loc == nil {
			break
		}
		n++
		if loc[2] < 0 {
			continue
		}
		if m, ok := itemMatch(text, l.start+loc[2], l.end); ok {
			out = append(out, m)
		}
	}
	return out, n
}

// itemMatch trims one list entry and strips its quotes.
func itemMatch(text string, start, end int) (Match, bool) {
	raw := text[start:end]
	lead := len(raw) - len(strings.TrimLeft(raw, " \t"))
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Match{}, false
	}
	s := start + lead
	value := Unquote(raw)
	if value == "" {
		return Match{}, false
	}
	return Match{Start: s, End: s + len(raw), Text: raw, Groups: []string{value}}, true
}

// Unquote strips one pair of matching surrounding quotes.
func Unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// listMatches returns one match per entry of the frontmatter list stored
// under key. Inline "[a, b]", block "- a" and scalar forms are accepted.
func listMatches(text, key string) []Match {
	fm, ok := FindFrontmatter(text)
	if !ok {
		return nil
	}
	lines := lineSpans(text, fm.InnerStart, fm.InnerEnd)
	for i, l := range lines {
		loc := fmKeyRe.FindStringSubmatchIndex(text[l.start:l.end])
		if loc == nil || !strings.EqualFold(text[l.start+loc[2]:l.start+loc[3]], key) {
			continue
		}
		restStart := l.start + loc[4]
		rest := strings.TrimRight(text[restStart:l.end], " \t")
		switch {
		case rest == "":
			items, _ := blockItems(text, lines[i+1:])
			return items
		case strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]"):
			return inlineItems(text, restStart+1, restStart+len(rest)-1)
		default:
			if m, ok := itemMatch(text, restStart, restStart+len(rest)); ok {
				return []Match{m}
			}
			return nil
		}
	}
	return nil
}

func inlineItems(text string, start, end int) []Match {
	var out []Match
	for start <= end {
		comma := strings.IndexByte(text[start:end], ',')
		stop := end
		if comma >= 0 {
			stop = start + comma
		}
		if m, ok := itemMatch(text, start, stop); ok {
			out = append(out, m)
		}
		if comma < 0 {
			break
		}
		start = stop + 1
	}
	return out
}

// propertyMatches returns the top-level key: value pairs of the frontmatter.
// Block lists are folded into their inline "[a, b]" form.
func propertyMatches(text string) []Match {
	fm, ok := FindFrontmatter(text)
	if !ok {
		return nil
	}
	lines := lineSpans(text, fm.InnerStart, fm.InnerEnd)
	var out []Match
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		loc := fmKeyRe.FindStringSubmatchIndex(text[l.start:l.end])
		if loc == nil {
			continue
		}
		key := text[l.start+loc[2] : l.start+loc[3]]
		value := strings.TrimSpace(text[l.start+loc[4] : l.end])
		end := l.end
		if value == "" {
			items, n := blockItems(text, lines[i+1:])
			if len(items) > 0 {
				names := make([]string, len(items))
				for j, it := range items {
					names[j] = it.Groups[0]
				}
				value = "[" + strings.Join(names, ", ") + "]"
				end = lines[i+n].end
				i += n
			}
		}
		out = append(out, Match{
			Start:  l.start,
			End:    end,
			Text:   text[l.start:end],
			Groups: []string{key, value},
		})
	}
	return out
}
