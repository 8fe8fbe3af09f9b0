package mcpserver

// SyntaxMapping describes how WikidPad constructs are rewritten. It is served
// as a resource and by the get_conversion_rules tool.
const SyntaxMapping = `# WikidPad to Obsidian syntax mapping

Pages are converted one file at a time: ` + "`data/<Name>.wiki`" + ` becomes
` + "`<Name>.md`" + ` in the vault. Rewrites run in this order.

| WikidPad                 | Obsidian                              |
|--------------------------|---------------------------------------|
| ` + "`[alias:Other]`" + `          | ` + "`aliases:`" + ` list in YAML frontmatter      |
| ` + "`++ Heading`" + `             | ` + "`## Heading`" + ` (one # per +)              |
| ` + "`[tag:two words]`" + `        | ` + "`#two-words`" + `                            |
| ` + "`CategoryName`" + `           | ` + "`#Name`" + ` (only when category tags are on) |
| ` + "`[key: value]`" + `           | ` + "`[key:: value]`" + ` (Dataview field)         |
| ` + "`[Some Page]`" + `            | ` + "`[[Some Page]]`" + `                          |
| ` + "`WikiWord`" + `               | ` + "`[[WikiWord]]`" + `                           |

## Rules

1. Tags and attributes are rewritten before links, so neither is ever taken
   for a bracketed link.
2. An alias line that becomes empty is dropped. Existing frontmatter is kept
   and aliases already listed are not repeated.
3. Every run of spaces collapses to one, leading indentation included, and
   trailing spaces are removed.
4. ` + "`[[double]]`" + ` brackets, URLs such as ` + "`[http://x]`" + ` and words inside
   ` + "`#tags`" + ` are left alone.
5. Blank aliases such as ` + "`[alias: ]`" + ` are dropped. Bracketed link text is
   kept as written, and bare WikiWords are linked wherever they appear,
   attribute values and URL paths included.
6. Malformed constructs (an unterminated ` + "`[`" + `) pass through unchanged.
7. Converting a page twice gives the same result as converting it once.

## Example

` + "```" + `text
+ Project Plan
[alias:Plan]
[tag:in progress]
Owner: see TeamPage and [Budget 2024]
[status: draft]
` + "```" + `

becomes

` + "```" + `markdown
---
aliases:
  - Plan
---
# Project Plan
#in-progress
Owner: see [[TeamPage]] and [[Budget 2024]]
[status:: draft]
` + "```" + `
`
