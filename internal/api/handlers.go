package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wikiport/internal/converter"
	"github.com/starford/wikiport/internal/pageservice"
)

const maxPreviewBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *pageservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *pageservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pageName extracts the {name} parameter, accepting percent-encoded names
// such as Other%20Page.
func pageName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPages handles GET /pages.
//
//	@Summary		List pages with optional pagination and tag filter
//	@Tags			pages
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListPages(r.Context(), limit, offset, q.Get("tag"))
	if err != nil {
		writeError(w, "list pages", err)
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: items, Total: total})
}

// GetPage handles GET /pages/{name}. The name may also be an alias.
//
//	@Summary		Get a page with its derived views and backlinks
//	@Tags			pages
//	@Produce		json
//	@Param			name	path		string	true	"Page name or alias"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{name} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetPage(r.Context(), pageName(r))
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// RenderPage handles GET /pages/{name}/html.
//
//	@Summary		Render a page as HTML
//	@Tags			pages
//	@Produce		html
//	@Param			name	path		string	true	"Page name or alias"
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{name}/html [get]
func (h *Handler) RenderPage(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.RenderPage(r.Context(), pageName(r))
	if err != nil {
		writeError(w, "render page", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// Backlinks handles GET /pages/{name}/backlinks.
//
//	@Summary		List pages linking to a page or its aliases
//	@Tags			pages
//	@Produce		json
//	@Param			name	path		string	true	"Page name"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/pages/{name}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	name := pageName(r)
	bl, err := h.svc.Backlinks(r.Context(), name)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Name: name, Backlinks: bl})
}

// Search handles GET /search.
//
//	@Summary		Full-text search across pages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Tags handles GET /tags.
//
//	@Summary		List tags with page counts
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// Graph handles GET /graph.
//
//	@Summary		Get the page link graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}

// Preview handles POST /convert/preview.
//
//	@Summary		Convert WikidPad markup without writing anything
//	@Tags			convert
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PreviewRequest	true	"WikidPad content"
//	@Success		200		{object}	Preview
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPreviewBytes)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	p, err := h.svc.Preview(r.Context(), req.Content, req.HTML)
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Convert handles POST /convert. The batch runs within the request;
// progress is streamed on GET /events.
//
//	@Summary		Convert the configured WikidPad wiki into the vault
//	@Tags			convert
//	@Produce		json
//	@Success		200	{object}	ConvertResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Convert(r.Context())
	if err != nil && !converter.IsPartial(err) {
		writeError(w, "convert", err)
		return
	}
	resp := ConvertResponse{Report: res.Report, Index: res.Index}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncIndex handles POST /index/sync.
//
//	@Summary		Re-index the vault
//	@Tags			convert
//	@Produce		json
//	@Success		200	{object}	index.SyncStats
//	@Security		BearerAuth
//	@Router			/index/sync [post]
func (h *Handler) SyncIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.SyncIndex(r.Context())
	if err != nil {
		writeError(w, "sync index", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
