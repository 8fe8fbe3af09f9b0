// Package pageservice is the use-case layer shared by the HTTP API and the
// MCP server: browsing the converted vault, previewing conversions and
// running batches.
package pageservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/checksum"
	"github.com/starford/wikiport/internal/converter"
	"github.com/starford/wikiport/internal/index"
	"github.com/starford/wikiport/internal/models"
	"github.com/starford/wikiport/internal/page"
	"github.com/starford/wikiport/internal/render"
	"github.com/starford/wikiport/internal/storage"
	"github.com/starford/wikiport/internal/syntax"
)

const bom = "\uFEFF"

// PageDetail is the full representation of a vault page.
type PageDetail struct {
	Path      string      `json:"path"`
	Name      string      `json:"name"`
	Content   string      `json:"content"`
	Checksum  string      `json:"checksum"`
	Views     *page.Views `json:"views"`
	Backlinks []string    `json:"backlinks"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PageListItem is a lightweight item in a list response.
type PageListItem struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	Aliases   []string  `json:"aliases"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Preview is a converted page that has not been written anywhere.
type Preview struct {
	Content string      `json:"content"`
	Views   *page.Views `json:"views"`
	HTML    string      `json:"html,omitempty"`
}

// BatchResult is the outcome of a batch run followed by an index sync.
type BatchResult struct {
	Report *converter.Report `json:"report"`
	Index  index.SyncStats   `json:"index"`
}

// ConverterFactory builds a converter for one batch run.
type ConverterFactory func(opts ...converter.Option) (*converter.Converter, error)

// Publisher receives batch progress.
type Publisher interface {
	PublishStarted(runID, source, destination string)
	ProgressHook() func(converter.PageResult)
	PublishReport(report *converter.Report)
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the engine used for previews.
func WithEngine(e *converter.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithRenderer sets the HTML renderer used for previews.
func WithRenderer(r *render.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithConverter enables batch runs.
func WithConverter(f ConverterFactory) Option {
	return func(s *Service) { s.newConverter = f }
}

// WithPublisher forwards batch progress, typically to the SSE broker.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service coordinates the vault storage, the index and the converter.
type Service struct {
	db    index.PageIndex
	store storage.Provider

	engine       *converter.Engine
	renderer     *render.Renderer
	newConverter ConverterFactory
	publisher    Publisher
	logger       *slog.Logger

	batch sync.Mutex
}

// NewService creates a service over the vault in store indexed by db.
func NewService(db index.PageIndex, store storage.Provider, opts ...Option) *Service {
	s := &Service{db: db, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = converter.NewEngine()
	}
	if s.renderer == nil {
		s.renderer = render.New()
	}
	return s
}

// ListPages returns paginated pages with an optional tag filter.
func (s *Service) ListPages(_ context.Context, limit, offset int, tag string) ([]PageListItem, int, error) {
	rows, total, err := s.db.ListPages(limit, offset, tag)
	if err != nil {
		return nil, 0, err
	}
	items := make([]PageListItem, len(rows))
	for i, r := range rows {
		items[i] = PageListItem{
			Path:      r.Path,
			Name:      r.Name,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			Aliases:   nonNilSlice(r.Aliases),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// GetPage resolves name (or an alias) to a page and reads it from the vault.
func (s *Service) GetPage(_ context.Context, name string) (*PageDetail, error) {
	row, err := s.db.GetPageByName(name)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(row.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("pageservice: %s: %w", row.Path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("pageservice: read %s: %w: %w", row.Path, apperr.ErrIO, err)
	}
	text := strings.TrimPrefix(string(data), bom)
	views := page.Analyze(syntax.Obsidian{}, row.Name, text)

	bl, err := s.backlinks(row.Name, views.Aliases)
	if err != nil {
		return nil, err
	}
	return &PageDetail{
		Path:      row.Path,
		Name:      row.Name,
		Content:   text,
		Checksum:  checksum.Sum(data),
		Views:     views,
		Backlinks: bl,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// RenderPage resolves name like GetPage and renders the page as HTML.
func (s *Service) RenderPage(ctx context.Context, name string) ([]byte, error) {
	detail, err := s.GetPage(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.renderer.HTML(detail.Content)
}

// Backlinks returns the paths of pages linking to name or to one of the
// aliases of the page it resolves to.
func (s *Service) Backlinks(_ context.Context, name string) ([]string, error) {
	row, err := s.db.GetPageByName(name)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.backlinks(name, nil)
	}
	if err != nil {
		return nil, err
	}
	return s.backlinks(row.Name, row.Aliases)
}

func (s *Service) backlinks(name string, aliases []string) ([]string, error) {
	seen := make(map[string]struct{})
	out := []string{}
	for _, target := range append([]string{name}, aliases...) {
		paths, err := s.db.Backlinks(target)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Tags returns every tag of the vault with its page count.
func (s *Service) Tags(_ context.Context) ([]index.TagCount, error) {
	return s.db.Tags()
}

// Graph returns all pages and resolved links.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []models.Link, error) {
	return s.db.Graph()
}

// Preview converts WikidPad content without touching the vault. With
// withHTML the converted page is also rendered.
func (s *Service) Preview(_ context.Context, content string, withHTML bool) (*Preview, error) {
	out := s.engine.ConvertContent(strings.TrimPrefix(content, bom))
	p := &Preview{
		Content: out,
		Views:   page.Analyze(syntax.Obsidian{}, "", out),
	}
	if withHTML {
		html, err := s.renderer.HTML(out)
		if err != nil {
			return nil, err
		}
		p.HTML = string(html)
	}
	return p, nil
}

// Convert runs one batch conversion into the vault and re-syncs the index.
// Only one batch runs at a time; a concurrent call fails with
// apperr.ErrConflict. Partial failures still sync the index and are
// returned alongside the result.
func (s *Service) Convert(ctx context.Context) (*BatchResult, error) {
	if s.newConverter == nil {
		return nil, errors.New("pageservice: batch conversion not configured")
	}
	if !s.batch.TryLock() {
		return nil, fmt.Errorf("pageservice: batch already running: %w", apperr.ErrConflict)
	}
	defer s.batch.Unlock()

	runID := uuid.NewString()
	opts := []converter.Option{converter.WithRunID(runID), converter.WithLogger(s.logger)}
	if s.publisher != nil {
		opts = append(opts, converter.WithProgress(s.publisher.ProgressHook()))
	}
	conv, err := s.newConverter(opts...)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		s.publisher.PublishStarted(runID, conv.Source(), s.store.Root())
	}

	report, runErr := conv.ConvertAll(ctx)
	if s.publisher != nil && report != nil {
		s.publisher.PublishReport(report)
	}
	if runErr != nil && !converter.IsPartial(runErr) {
		return &BatchResult{Report: report}, runErr
	}

	stats, err := index.Sync(s.db, s.store, s.logger)
	if err != nil {
		return &BatchResult{Report: report}, fmt.Errorf("pageservice: sync index: %w", err)
	}
	return &BatchResult{Report: report, Index: stats}, runErr
}

// IndexFile analyses data and upserts it into the index.
func (s *Service) IndexFile(path string, data []byte) error {
	return index.IndexFile(s.db, path, data, time.Now())
}

// SyncIndex brings the index in line with the vault.
func (s *Service) SyncIndex(_ context.Context) (index.SyncStats, error) {
	return index.Sync(s.db, s.store, s.logger)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
