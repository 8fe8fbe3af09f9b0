package converter

import (
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/wikiport/internal/syntax"
)

const defaultIndent = "  "

var (
	aliasKeyRe = regexp.MustCompile(`^((?i:aliases)):(?:[ \t]+|$)(.*)$`)
	listItemRe = regexp.MustCompile(`^([ \t]*)-(?:[ \t]|$)`)
)

// mergeAliases returns front with aliases added to its aliases list. An empty
// front yields a new block. Aliases already listed are not repeated; every
// other line of the block is kept as is.
func mergeAliases(front string, aliases []string, nl string) string {
	if front == "" {
		var b strings.Builder
		b.WriteString("---" + nl + "aliases:" + nl)
		for _, a := range aliases {
			b.WriteString(defaultIndent + "- " + yamlScalar(a) + nl)
		}
		b.WriteString("---" + nl)
		return b.String()
	}

	fm, ok := syntax.FindFrontmatter(front)
	if !ok {
		return front
	}
	nl = newline(front)

	existing := syntax.Obsidian{}.Alias().FindAll(front)
	known := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		known[m.Group(0)] = struct{}{}
	}
	var fresh []string
	for _, a := range aliases {
		if _, dup := known[a]; dup {
			continue
		}
		known[a] = struct{}{}
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		return front
	}

	inner := front[fm.InnerStart:fm.InnerEnd]
	var lines []string
	if inner != "" {
		lines = strings.Split(strings.ReplaceAll(inner, "\r\n", "\n"), "\n")
	}
	lines = insertAliases(lines, existing, fresh)

	joined := strings.Join(lines, nl)
	if inner == "" {
		joined += nl
	}
	return front[:fm.InnerStart] + joined + front[fm.InnerEnd:]
}

func insertAliases(lines []string, existing []syntax.Match, fresh []string) []string {
	key := -1
	var name, rest string
	for i, l := range lines {
		if m := aliasKeyRe.FindStringSubmatch(l); m != nil {
			key, name, rest = i, m[1], strings.TrimSpace(m[2])
			break
		}
	}

	if key < 0 {
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		lines = append(lines, "aliases:")
		return append(lines, items(defaultIndent, fresh)...)
	}

	if rest == "" {
		// Block list: append after the last entry.
		indent := defaultIndent
		end := key + 1
		for end < len(lines) {
			m := listItemRe.FindStringSubmatch(lines[end])
			if m == nil {
				break
			}
			if end == key+1 {
				indent = m[1]
			}
			end++
		}
		out := make([]string, 0, len(lines)+len(fresh))
		out = append(out, lines[:end]...)
		out = append(out, items(indent, fresh)...)
		return append(out, lines[end:]...)
	}

	// Inline or scalar form: rewrite as a block list holding old and new entries.
	block := []string{name + ":"}
	for _, m := range existing {
		block = append(block, defaultIndent+"- "+m.Text)
	}
	block = append(block, items(defaultIndent, fresh)...)
	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:key]...)
	out = append(out, block...)
	return append(out, lines[key+1:]...)
}

func items(indent string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = indent + "- " + yamlScalar(n)
	}
	return out
}

// yamlScalar renders s as a YAML scalar, quoting only when the plain form
// would not read back as the same string.
func yamlScalar(s string) string {
	out, err := yaml.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(string(out), "\n")
}
