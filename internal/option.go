package internal

import (
	"io"
	"log/slog"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	logger *slog.Logger
	stdout io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithOutput sets where command results (reports, page views) are printed.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errConfigRequired
	}
	if app.logger == nil {
		app.logger = NewLogger(app.config.App.Log)
	}
	if app.stdout == nil {
		app.stdout = io.Discard
	}
	return app, nil
}
