package syntax

import (
	"fmt"

	"github.com/starford/wikiport/internal/apperr"
)

// Dialect names a wiki markup flavour.
type Dialect string

const (
	DialectWikidPad Dialect = "wikidpad"
	DialectObsidian Dialect = "obsidian"
)

// Definition bundles the matchers of one dialect.
//
// Header matches capture (markers, text). Link, AutoLink, Tag, Category,
// FrontmatterTags and Alias capture a single name. Attribute and Property
// capture (key, value).
type Definition interface {
	Dialect() Dialect
	// Extension is the page file extension including the dot.
	Extension() string
	Header() Matcher
	Link() Matcher
	AutoLink() Matcher
	Tag() Matcher
	Category() Matcher
	FrontmatterTags() Matcher
	Attribute() Matcher
	Alias() Matcher
	Property() Matcher
}

// ForDialect returns the definition registered for d.
func ForDialect(d Dialect) (Definition, error) {
	switch d {
	case DialectWikidPad:
		return WikidPad{}, nil
	case DialectObsidian:
		return Obsidian{}, nil
	default:
		return nil, fmt.Errorf("syntax: dialect %q: %w", d, apperr.ErrFormat)
	}
}
