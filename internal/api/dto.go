package api

import (
	"github.com/starford/wikiport/internal/converter"
	"github.com/starford/wikiport/internal/index"
	"github.com/starford/wikiport/internal/models"
	"github.com/starford/wikiport/internal/pageservice"
)

// PreviewRequest is the request body for a conversion preview.
type PreviewRequest struct {
	Content string `json:"content" example:"+ Title\nSee [OtherPage]" validate:"required"`
	HTML    bool   `json:"html" example:"true"`
}

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = pageservice.PageDetail

// PageListItem is a lightweight item in a list response (aliased from the domain layer).
type PageListItem = pageservice.PageListItem

// Preview is the conversion preview response (aliased from the domain layer).
type Preview = pageservice.Preview

// PageListResponse wraps paginated page listings.
type PageListResponse struct {
	Pages []PageListItem `json:"pages" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// TagsResponse lists tags with their page counts.
type TagsResponse struct {
	Tags []index.TagCount `json:"tags" validate:"required"`
}

// BacklinksResponse lists the pages linking to a page.
type BacklinksResponse struct {
	Name      string   `json:"name" example:"HomePage"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// GraphResponse wraps the link graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []models.Link     `json:"links" validate:"required"`
}

// ConvertResponse reports a batch run. Error is set when some pages failed.
type ConvertResponse struct {
	Report *converter.Report `json:"report"`
	Index  index.SyncStats   `json:"index"`
	Error  string            `json:"error,omitempty"`
}
