// Package mcpserver exposes the converter and the converted vault to LLM
// clients over the Model Context Protocol (stdio transport).
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/converter"
	"github.com/starford/wikiport/internal/pageservice"
)

const (
	mappingURI   = "wikiport://syntax-mapping"
	defaultLimit = 50
)

// Server wraps the MCP server with wikiport tools.
type Server struct {
	mcp *server.MCPServer
	svc *pageservice.Service
}

// New creates an MCP server with all tools and resources registered.
func New(svc *pageservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"wikiport",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_content",
		mcp.WithDescription("Convert WikidPad markup to Obsidian Markdown without writing anything. "+
			"Returns the converted text with its headers, links, tags, aliases and attributes."),
		mcp.WithString("content", mcp.Required(), mcp.Description("WikidPad page text")),
		mcp.WithBoolean("html", mcp.Description("Also render the result as HTML")),
	), s.convertContent)

	s.mcp.AddTool(mcp.NewTool("convert_wiki",
		mcp.WithDescription("Convert the configured WikidPad wiki into the Obsidian vault and re-index it. "+
			"Returns the batch report."),
	), s.convertWiki)

	s.mcp.AddTool(mcp.NewTool("get_conversion_rules",
		mcp.WithDescription("Return the WikidPad to Obsidian syntax mapping. "+
			"Also available as the "+mappingURI+" resource."),
	), s.getConversionRules)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List page names of the converted vault."),
		mcp.WithString("tag", mcp.Description("Only pages carrying this tag")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of pages (default 50)")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the Markdown content of a vault page by name or alias."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Page name without extension, or one of its aliases")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through page names, aliases, tags and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all pages that link to the named page or one of its aliases."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Page name")),
	), s.getBacklinks)

	s.mcp.AddResource(
		mcp.NewResource(mappingURI, "WikidPad to Obsidian syntax mapping",
			mcp.WithResourceDescription("How each WikidPad construct is rewritten during conversion."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMappingResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) convertContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Preview(ctx, content, req.GetBool("html", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p), nil
}

func (s *Server) convertWiki(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Convert(ctx)
	if err != nil && !converter.IsPartial(err) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := jsonResult(res)
	if err != nil {
		out.Content = append(out.Content, mcp.NewTextContent("some pages failed: "+err.Error()))
	}
	return out, nil
}

func (s *Server) getConversionRules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SyntaxMapping), nil
}

func (s *Server) readMappingResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      mappingURI,
			MIMEType: "text/markdown",
			Text:     SyntaxMapping,
		},
	}, nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLimit)
	items, total, err := s.svc.ListPages(ctx, limit, 0, req.GetString("tag", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	text := strings.Join(names, "\n")
	if total > len(items) {
		text += fmt.Sprintf("\n(%d of %d pages)", len(items), total)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetPage(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(detail.Content), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}
