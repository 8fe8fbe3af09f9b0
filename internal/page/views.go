package page

import "github.com/starford/wikiport/internal/syntax"

// Views is every derived view of a page computed from one content snapshot.
type Views struct {
	Name       string            `json:"name"`
	Dialect    string            `json:"dialect"`
	Headers    []Header          `json:"headers"`
	Links      []string          `json:"links"`
	Tags       []string          `json:"tags"`
	Aliases    []string          `json:"aliases"`
	Attributes map[string]string `json:"attributes"`
}

// Views loads the content if stale and derives all views from it.
func (p *Page) Views() (*Views, error) {
	text, err := p.text()
	if err != nil {
		return nil, err
	}
	return Analyze(p.def, p.name, text), nil
}

// Analyze derives the views of text without a backing file. The index uses it
// for content it has already read.
func Analyze(def syntax.Definition, name, text string) *Views {
	return &Views{
		Name:       name,
		Dialect:    string(def.Dialect()),
		Headers:    headers(def, text),
		Links:      links(def, text),
		Tags:       tags(def, text),
		Aliases:    groupValues(def.Alias().FindAll(text)),
		Attributes: attributes(def, text),
	}
}
