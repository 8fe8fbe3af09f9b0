package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/page"
	"github.com/starford/wikiport/internal/storage"
	"github.com/starford/wikiport/internal/syntax"
	"github.com/starford/wikiport/internal/wiki"
)

// Collision decides what happens when two pages map to the same output file.
// Names are compared case-insensitively.
type Collision string

const (
	// CollisionOverwrite lets the later page replace the earlier one.
	CollisionOverwrite Collision = "overwrite"
	// CollisionError fails the later page with apperr.ErrCollision.
	CollisionError Collision = "error"
	// CollisionSuffix writes the later page as <name>-2.md, <name>-3.md, ...
	CollisionSuffix Collision = "suffix"
)

// PageError reports the failure of one page in a batch.
type PageError struct {
	Page   string
	Output string
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("converter: page %s -> %s: %v", e.Page, e.Output, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// IsPartial reports whether err comes from individual pages failing rather
// than from the batch as a whole (missing source, cancelled context).
func IsPartial(err error) bool {
	var pe *PageError
	return errors.As(err, &pe)
}

// PageResult is the outcome of one page, passed to the progress hook.
// Skipped is set when the output already existed and was left alone.
type PageResult struct {
	RunID   string
	Page    string
	Source  string
	Output  string
	Skipped bool
	Err     error
}

// Report summarises a batch run.
type Report struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Total       int       `json:"total"`
	Converted   int       `json:"converted"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Outputs     []string  `json:"outputs"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Option configures a Converter.
type Option func(*Converter)

// WithEngineOptions configures the page engine.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(c *Converter) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// WithCollision sets the output collision policy.
func WithCollision(policy Collision) Option {
	return func(c *Converter) {
		c.collision = policy
	}
}

// WithContinueOnError keeps converting after a page fails. The failures are
// returned together once every page has been tried.
func WithContinueOnError(enabled bool) Option {
	return func(c *Converter) {
		c.continueOnError = enabled
	}
}

// WithOverwriteExisting controls whether files already present in the
// destination are replaced. When disabled such pages are skipped and counted
// in Report.Skipped. Enabled by default.
func WithOverwriteExisting(enabled bool) Option {
	return func(c *Converter) {
		c.overwriteExisting = enabled
	}
}

// WithWorkers converts up to n pages at a time.
func WithWorkers(n int) Option {
	return func(c *Converter) {
		c.workers = n
	}
}

// WithRunID fixes the run ID instead of generating one per batch.
func WithRunID(id string) Option {
	return func(c *Converter) {
		c.runID = id
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// WithProgress registers a hook called after every page. With several
// workers it may be called concurrently.
func WithProgress(fn func(PageResult)) Option {
	return func(c *Converter) {
		c.onPage = fn
	}
}

// Converter turns a WikidPad wiki into a folder of Obsidian pages.
type Converter struct {
	source   *wiki.Wiki
	destRoot string
	engine   *Engine

	engineOpts        []EngineOption
	collision         Collision
	continueOnError   bool
	overwriteExisting bool
	workers           int
	logger            *slog.Logger
	onPage            func(PageResult)
	runID             string
}

// New opens the WikidPad wiki at sourceRoot. It fails with
// apperr.ErrNotFound when the folder does not exist.
func New(sourceRoot, destRoot string, opts ...Option) (*Converter, error) {
	src, err := wiki.OpenWikidPad(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("converter: open source: %w", err)
	}
	c := &Converter{
		source:    src,
		destRoot:  destRoot,
		collision:         CollisionOverwrite,
		overwriteExisting: true,
		workers:           1,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	switch c.collision {
	case CollisionOverwrite, CollisionError, CollisionSuffix:
	default:
		return nil, fmt.Errorf("converter: unknown collision policy %q", c.collision)
	}
	c.engine = NewEngine(c.engineOpts...)
	return c, nil
}

// Source returns the folder the pages are read from.
func (c *Converter) Source() string { return c.source.PageRoot() }

// Engine returns the page engine used by the converter.
func (c *Converter) Engine() *Engine { return c.engine }

type job struct {
	page   *page.Page
	output string
}

// ConvertAll converts every source page into destRoot/<name>.md, creating
// destRoot when needed. Existing files are overwritten unless
// WithOverwriteExisting(false) is set.
//
// By default the first failing page aborts the batch and its *PageError is
// returned. With WithContinueOnError the remaining pages are still
// converted and all page errors are returned joined. The report is returned
// in every case.
func (c *Converter) ConvertAll(ctx context.Context) (*Report, error) {
	runID := c.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &Report{
		RunID:       runID,
		Source:      c.source.PageRoot(),
		Destination: c.destRoot,
		Outputs:     []string{},
		StartedAt:   time.Now(),
	}
	logger := c.logger.With(slog.String("run_id", report.RunID))
	defer func() { report.FinishedAt = time.Now() }()

	if err := os.MkdirAll(c.destRoot, 0o755); err != nil {
		return report, fmt.Errorf("converter: create destination: %w: %w", apperr.ErrIO, err)
	}
	store, err := storage.NewFS(c.destRoot)
	if err != nil {
		return report, fmt.Errorf("converter: open destination: %w: %w", apperr.ErrIO, err)
	}

	pages, err := c.source.Pages()
	if err != nil {
		return report, fmt.Errorf("converter: list pages: %w", err)
	}
	report.Total = len(pages)
	logger.Info("convert: batch started",
		slog.String("source", report.Source),
		slog.String("destination", report.Destination),
		slog.Int("pages", report.Total))

	jobs, planErrs := c.plan(pages, report, logger)
	if len(planErrs) > 0 && !c.continueOnError {
		c.finish(report, logger)
		return report, planErrs[0]
	}

	var runErrs []error
	if c.workers > 1 {
		runErrs, err = c.runParallel(ctx, store, jobs, report, logger)
	} else {
		runErrs, err = c.runSequential(ctx, store, jobs, report, logger)
	}
	c.finish(report, logger)
	if err != nil {
		return report, err
	}

	errs := append(planErrs, runErrs...)
	switch {
	case len(errs) == 0:
		return report, nil
	case !c.continueOnError:
		return report, errs[0]
	default:
		return report, errors.Join(errs...)
	}
}

// plan assigns an output name to every page according to the collision policy.
func (c *Converter) plan(pages []*page.Page, report *Report, logger *slog.Logger) ([]job, []error) {
	ext := syntax.Obsidian{}.Extension()
	owners := make(map[string]string, len(pages))
	jobs := make([]job, 0, len(pages))
	var errs []error

	for _, p := range pages {
		out := p.Name() + ext
		if prev, clash := owners[strings.ToLower(out)]; clash {
			switch c.collision {
			case CollisionError:
				res := PageResult{RunID: report.RunID, Page: p.Name(), Source: p.Path(), Output: out}
				res.Err = &PageError{Page: p.Name(), Output: out,
					Err: fmt.Errorf("%w: %s already written by %s", apperr.ErrCollision, out, prev)}
				c.record(report, res, logger)
				errs = append(errs, res.Err)
				if !c.continueOnError {
					return jobs, errs
				}
				continue
			case CollisionSuffix:
				for n := 2; ; n++ {
					candidate := fmt.Sprintf("%s-%d%s", p.Name(), n, ext)
					if _, taken := owners[strings.ToLower(candidate)]; !taken {
						out = candidate
						break
					}
				}
				logger.Info("convert: renamed colliding output",
					slog.String("page", p.Name()), slog.String("output", out), slog.String("first", prev))
			default:
				logger.Warn("convert: output overwritten by later page",
					slog.String("page", p.Name()), slog.String("output", out), slog.String("first", prev))
			}
		}
		owners[strings.ToLower(out)] = p.Name()
		jobs = append(jobs, job{page: p, output: out})
	}
	return jobs, errs
}

func (c *Converter) runSequential(ctx context.Context, store storage.Provider, jobs []job, report *Report, logger *slog.Logger) ([]error, error) {
	var errs []error
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return errs, fmt.Errorf("converter: %w", err)
		}
		res := c.convertOne(store, j, report.RunID)
		c.record(report, res, logger)
		if res.Err != nil {
			errs = append(errs, res.Err)
			if !c.continueOnError {
				return errs, nil
			}
		}
	}
	return errs, nil
}

// runParallel converts jobs with a bounded errgroup. Results are recorded in
// job order once all workers are done.
func (c *Converter) runParallel(ctx context.Context, store storage.Provider, jobs []job, report *Report, logger *slog.Logger) ([]error, error) {
	results := make([]*PageResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := c.convertOne(store, j, report.RunID)
			results[i] = &res
			if c.onPage != nil {
				c.onPage(res)
			}
			if res.Err != nil && !c.continueOnError {
				return res.Err
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		if res == nil {
			continue
		}
		c.tally(report, *res, logger)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return errs, fmt.Errorf("converter: %w", err)
	}
	return errs, nil
}

func (c *Converter) convertOne(store storage.Provider, j job, runID string) PageResult {
	res := PageResult{RunID: runID, Page: j.page.Name(), Source: j.page.Path(), Output: j.output}
	if !c.overwriteExisting {
		exists, err := store.Exists(j.output)
		if err != nil {
			res.Err = &PageError{Page: j.page.Name(), Output: j.output, Err: fmt.Errorf("%w: %w", apperr.ErrIO, err)}
			return res
		}
		if exists {
			res.Skipped = true
			return res
		}
	}
	text, err := j.page.Content()
	if err == nil {
		if werr := store.Write(j.output, []byte(c.engine.ConvertContent(text))); werr != nil {
			err = fmt.Errorf("%w: %w", apperr.ErrIO, werr)
		}
	}
	if err != nil {
		res.Err = &PageError{Page: j.page.Name(), Output: j.output, Err: err}
	}
	return res
}

// record tallies res and calls the progress hook.
func (c *Converter) record(report *Report, res PageResult, logger *slog.Logger) {
	c.tally(report, res, logger)
	if c.onPage != nil {
		c.onPage(res)
	}
}

func (c *Converter) tally(report *Report, res PageResult, logger *slog.Logger) {
	if res.Err != nil {
		report.Failed++
		logger.Warn("convert: page failed",
			slog.String("page", res.Page), slog.String("error", res.Err.Error()))
		return
	}
	if res.Skipped {
		report.Skipped++
		logger.Info("convert: output exists, page skipped",
			slog.String("page", res.Page), slog.String("output", res.Output))
		return
	}
	report.Converted++
	report.Outputs = append(report.Outputs, res.Output)
	logger.Debug("convert: page written",
		slog.String("page", res.Page), slog.String("output", res.Output))
}

func (c *Converter) finish(report *Report, logger *slog.Logger) {
	logger.Info("convert: batch finished",
		slog.Int("total", report.Total),
		slog.Int("converted", report.Converted),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("elapsed", time.Since(report.StartedAt)))
}
