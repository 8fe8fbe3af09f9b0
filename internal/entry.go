// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/wikiport/internal/api"
	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/converter"
	"github.com/starford/wikiport/internal/index"
	"github.com/starford/wikiport/internal/mcpserver"
	"github.com/starford/wikiport/internal/pageservice"
	"github.com/starford/wikiport/internal/sse"
	"github.com/starford/wikiport/internal/storage"
	"github.com/starford/wikiport/internal/wiki"
)

var errConfigRequired = errors.New("config is required")

// vault bundles the destination storage and its index.
type vault struct {
	store *storage.FS
	db    *index.DB
}

func (a *application) openVault() (*vault, error) {
	cfg := a.config
	if err := os.MkdirAll(cfg.Destination.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Destination.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if _, err := index.Sync(db, store, a.logger); err != nil {
		a.logger.Warn("index: initial sync failed", slog.String("error", err.Error()))
	}
	return &vault{store: store, db: db}, nil
}

// converterFactory returns nil when no source wiki is configured, which
// leaves batch runs disabled.
func (a *application) converterFactory() pageservice.ConverterFactory {
	cfg := a.config
	if cfg.Source.Path == "" {
		return nil
	}
	return func(opts ...converter.Option) (*converter.Converter, error) {
		all := append(cfg.ConverterOptions(), converter.WithLogger(a.logger))
		return converter.New(cfg.Source.Path, cfg.Destination.Path, append(all, opts...)...)
	}
}

func (a *application) newService(v *vault, opts ...pageservice.Option) *pageservice.Service {
	base := []pageservice.Option{
		pageservice.WithEngine(converter.NewEngine(converter.WithCategoryTags(a.config.Conversion.CategoryTags))),
		pageservice.WithLogger(a.logger),
	}
	if f := a.converterFactory(); f != nil {
		base = append(base, pageservice.WithConverter(f))
	}
	return pageservice.NewService(v.db, v.store, append(base, opts...)...)
}

// Run starts the HTTP API over the destination vault until ctx is cancelled
// or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("serve: configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source_path", cfg.Source.Path),
		slog.String("vault_path", cfg.Destination.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.Log.Level))

	v, err := app.openVault()
	if err != nil {
		return err
	}
	defer v.db.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := app.newService(v, pageservice.WithPublisher(broker))
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, v.db, v.store, logger, broker.PublishChange); err != nil {
			logger.Warn("watcher: stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("serve: http server starting", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("serve: received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("serve: context cancelled, shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("serve: http shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("serve: stopped with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("serve: stopped")
	return nil
}

// RunConvert converts the configured source wiki into the destination vault
// and prints the report as JSON. A missing source wiki yields an error
// wrapping apperr.ErrNotFound; individual page failures are reported with
// converter.IsPartial.
func RunConvert(ctx context.Context, opts ...Option) (*converter.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config
	if cfg.Source.Path == "" {
		return nil, fmt.Errorf("convert: source path not set: %w", apperr.ErrNotFound)
	}

	conv, err := app.converterFactory()()
	if err != nil {
		return nil, err
	}
	report, runErr := conv.ConvertAll(ctx)
	if report != nil {
		if err := writeJSON(app, report); err != nil {
			return report, err
		}
	}
	return report, runErr
}

// RunInspect prints the derived views of one page as JSON. By default the
// page is looked up in the source wiki; fromVault selects the destination vault.
func RunInspect(_ context.Context, name string, fromVault bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	var w *wiki.Wiki
	if fromVault {
		w, err = wiki.OpenObsidian(cfg.Destination.Path)
	} else {
		if cfg.Source.Path == "" {
			return fmt.Errorf("inspect: source path not set: %w", apperr.ErrNotFound)
		}
		w, err = wiki.OpenWikidPad(cfg.Source.Path)
	}
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	p, err := w.Page(name)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	views, err := p.Views()
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	return writeJSON(app, views)
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, version string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	v, err := app.openVault()
	if err != nil {
		return err
	}
	defer v.db.Close()

	srv := mcpserver.New(app.newService(v), version)
	app.logger.Info("mcp: serving on stdio", slog.String("vault_path", app.config.Destination.Path))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func writeJSON(app *application, v any) error {
	enc := json.NewEncoder(app.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
