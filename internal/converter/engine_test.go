package converter_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/wikiport/internal/converter"
)

func TestConvertContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text", "nothing to do here", "nothing to do here"},
		{"header h1", "+ H1", "# H1"},
		{"header levels", "++ H2\nSome content\n+++ H3", "## H2\nSome content\n### H3"},
		{"tag hyphenation", "[tag:my tag name]", "#my-tag-name"},
		{"tag inline", "Some text [tag:example] more text", "Some text #example more text"},
		{"single bracket link", "See [Link with Spaces] for more info", "See [[Link with Spaces]] for more info"},
		{"auto link", "See WikiWord for more info", "See [[WikiWord]] for more info"},
		{"auto link forms", "AbC AbcD ABcd ABcD AbCDe AbC123", "[[AbC]] [[AbcD]] [[ABcd]] [[ABcD]] [[AbCDe]] [[AbC123]]"},
		{"lowercase camel untouched", "aaBB aaBbbCcc camelCase iPhone", "aaBB aaBbbCcc camelCase iPhone"},
		{"bracketed auto link", "See [WikiWord] here", "See [[WikiWord]] here"},
		{"attribute", "Some text [author: John Doe] more text", "Some text [author:: John Doe] more text"},
		{"attributes", "[author: John] [status: draft] [date: 2024-01-15]", "[author:: John] [status:: draft] [date:: 2024-01-15]"},
		{"attribute key charset", "[created-date: 2024-01-15] [build123: latest] [v.1: x]", "[created-date:: 2024-01-15] [build123:: latest] [v.1:: x]"},
		{"annotations untouched", "[icon=date] [icon=pin] [color=blue]", "[icon=date] [icon=pin] [color=blue]"},
		{"url untouched", "[https://example.com]", "[https://example.com]"},
		{"indentation collapsed", "  indented  words   here", " indented words here"},
		{"nested list collapsed", "    * indented  item\n        * nested", " * indented item\n * nested"},
		{"bracketed link kept verbatim", "See [ Foo ] here", "See [[ Foo ]] here"},
		{"trailing spaces", "line   \nnext  ", "line\nnext"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, converter.NewEngine().ConvertContent(tt.in))
		})
	}
}

func TestConvertContent_LinkIdempotence(t *testing.T) {
	t.Parallel()
	e := converter.NewEngine()

	for _, in := range []string{
		"See [[WikiWord]] and [[Another Link]]",
		"[[Target|shown text]] and [[Some WikiWord inside]]",
		"# Title\n[[A]] [[B]]\n",
	} {
		out := e.ConvertContent(in)
		assert.Equal(t, in, out)
		assert.NotContains(t, out, "[[[")
	}

	once := e.ConvertContent("See WikiWord and [Another Link].")
	assert.Equal(t, once, e.ConvertContent(once), "converting twice must not change links again")
}

func TestConvertContent_OrderInvariant(t *testing.T) {
	t.Parallel()
	e := converter.NewEngine()

	out := e.ConvertContent("[key:: value] and [author: X] and [Link] and [tag:t]")
	assert.Equal(t, "[key:: value] and [author:: X] and [[Link]] and #t", out)
	assert.NotContains(t, out, "[[key::")
	assert.NotContains(t, out, "[[author")
	assert.NotContains(t, out, "[[tag")

	out = e.ConvertContent("[author::John] [keyTwo:: valueTwo]")
	assert.Equal(t, "[author::John] [keyTwo:: valueTwo]", out)
}

func TestConvertContent_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"unterminated link",
			"[MissingBracket\nSee [ValidLink] here\n[AnotherMissing",
			"[MissingBracket\nSee [[ValidLink]] here\n[AnotherMissing",
		},
		{
			"unterminated tag",
			"[tag:important\n[tag:valid]\n[tag:another",
			"[tag:important\n#valid\n[tag:another",
		},
		{
			"unterminated attribute",
			"[author: John Doe\n[status: draft]\n[date: 2024-01-15",
			"[author: John Doe\n[status:: draft]\n[date: 2024-01-15",
		},
		{
			"inline mix",
			"Before [tag:broken\ntext after and [link\nhere [status: done] end.",
			"Before [tag:broken\ntext after and [link\nhere [status:: done] end.",
		},
		{
			"same line, both unterminated",
			"[another-link and [key: value",
			"[another-link and [key: value",
		},
		{
			"same line, unterminated link before attribute",
			"[another-link and [key: value]",
			"[another-link and [key:: value]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, converter.NewEngine().ConvertContent(tt.in))
		})
	}
}

func TestConvertContent_Aliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"new frontmatter",
			"[alias:FirstAlias] [alias:SecondAlias]\n+ My Page\nContent here",
			"---\naliases:\n  - FirstAlias\n  - SecondAlias\n---\n# My Page\nContent here",
		},
		{
			"alias with spaces",
			"[alias:My Alias Name]\nContent",
			"---\naliases:\n  - My Alias Name\n---\nContent",
		},
		{
			"alias inside a line",
			"Intro [alias:A] text",
			"---\naliases:\n  - A\n---\nIntro text",
		},
		{
			"duplicate aliases",
			"[alias:A]\n[alias:A]\nText",
			"---\naliases:\n  - A\n---\nText",
		},
		{
			"existing frontmatter without aliases",
			"---\ntitle: My Page\ntags: [important]\n---\n[alias:PageAlias]\n[alias:Second]\nBody text\n",
			"---\ntitle: My Page\ntags: [important]\naliases:\n  - PageAlias\n  - Second\n---\nBody text\n",
		},
		{
			"existing block list",
			"---\ntitle: Test\naliases:\n  - ExistingAlias\nauthor: John\n---\n[alias:NewAlias]\nText",
			"---\ntitle: Test\naliases:\n  - ExistingAlias\n  - NewAlias\nauthor: John\n---\nText",
		},
		{
			"existing inline list",
			"---\naliases: [Old]\n---\n[alias:New]\nText",
			"---\naliases:\n  - Old\n  - New\n---\nText",
		},
		{
			"already listed",
			"---\naliases:\n  - Same\n---\n[alias:Same]\nText",
			"---\naliases:\n  - Same\n---\nText",
		},
		{
			"empty frontmatter",
			"---\n---\n[alias:A]\nx",
			"---\naliases:\n  - A\n---\nx",
		},
		{
			"crlf",
			"---\r\ntitle: T\r\n---\r\n[alias:A]\r\nBody\r\n",
			"---\r\ntitle: T\r\naliases:\r\n  - A\r\n---\r\nBody\r\n",
		},
		{
			"blank alias dropped",
			"---\ntitle: T\n---\n[alias: ]\n[alias:Real]\nBody",
			"---\ntitle: T\naliases:\n  - Real\n---\nBody",
		},
		{
			"unterminated alias stays in body",
			"[alias:ValidAlias]\n[alias:missingbracket\nText",
			"---\naliases:\n  - ValidAlias\n---\n[alias:missingbracket\nText",
		},
		{
			"frontmatter without aliases in body",
			"---\ntitle: T\n---\n+ Head",
			"---\ntitle: T\n---\n# Head",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := converter.NewEngine().ConvertContent(tt.in)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, 2, delimiterLines(out), "exactly one frontmatter block")
		})
	}
}

func TestConvertContent_ComplexFrontmatterPreserved(t *testing.T) {
	t.Parallel()

	in := "---\n" +
		"title: Complex Page\n" +
		"tags: [tag1, tag2]\n" +
		"metadata:\n" +
		"  author: John Doe\n" +
		"  date: 2024-01-15\n" +
		"---\n" +
		"[alias:ComplexAlias]\n" +
		"+ Heading\n"

	out := converter.NewEngine().ConvertContent(in)
	assert.Equal(t, "---\n"+
		"title: Complex Page\n"+
		"tags: [tag1, tag2]\n"+
		"metadata:\n"+
		"  author: John Doe\n"+
		"  date: 2024-01-15\n"+
		"aliases:\n"+
		"  - ComplexAlias\n"+
		"---\n"+
		"# Heading\n", out)
}

func TestConvertContent_BlankAliasOnly(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Body", converter.NewEngine().ConvertContent("[alias: ]\nBody"))
	assert.Equal(t, "Intro text", converter.NewEngine().ConvertContent("Intro [alias:  ] text"))
}

// Bare WikiWords are linked wherever they appear, including attribute values
// and URL paths.
func TestConvertContent_AutoLinkInAttributesAndURLs(t *testing.T) {
	t.Parallel()
	e := converter.NewEngine()

	assert.Equal(t, "[author:: John [[WikiWord]] Smith]", e.ConvertContent("[author: John WikiWord Smith]"))
	assert.Equal(t, "http://example.com/[[WikiWord]]", e.ConvertContent("http://example.com/WikiWord"))
	assert.Equal(t, "[https://example.com/WikiWord]", e.ConvertContent("[https://example.com/WikiWord]"))
}

func TestConvertContent_CategoryTags(t *testing.T) {
	t.Parallel()

	off := converter.NewEngine().ConvertContent("CategoryTests and more content")
	assert.Contains(t, off, "CategoryTests")
	assert.NotContains(t, off, "#Tests")

	on := converter.NewEngine(converter.WithCategoryTags(true))
	assert.Equal(t, "#Tests and more content", on.ConvertContent("CategoryTests and more content"))
	assert.Equal(t, "start #one #two #Three #four and continue",
		on.ConvertContent("start [tag:one][tag:two]CategoryThree [tag:four] and continue"))
}

func TestConvertContent_SinglePageScenario(t *testing.T) {
	t.Parallel()

	in := "+ Title\n[tag:demo]\nSee WikiWord and [Another Link].\n[author: X]"
	out := converter.NewEngine().ConvertContent(in)

	assert.Equal(t, "# Title\n#demo\nSee [[WikiWord]] and [[Another Link]].\n[author:: X]", out)
	assert.NotContains(t, out, "[tag:")
	assert.NotContains(t, out, "[author:")
}

func delimiterLines(text string) int {
	n := 0
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if l == "---" {
			n++
		}
	}
	if n == 0 {
		// No frontmatter at all counts as a well formed page.
		return 2
	}
	return n
}
