package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/wikiport/internal"
	"github.com/starford/wikiport/internal/apperr"
	"github.com/starford/wikiport/internal/converter"
	pkgconfig "github.com/starford/wikiport/pkg/config"
)

var version = "dev"

// Exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitMissingSource = 2
)

func loadConfig(cmd *cli.Command, overrides ...func(*internal.Config)) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOrDefault(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("source") {
		cfg.Source.Path = cmd.String("source")
	}
	if cmd.IsSet("destination") {
		cfg.Destination.Path = cmd.String("destination")
	}
	if cmd.IsSet("category-tags") {
		cfg.Conversion.CategoryTags = cmd.Bool("category-tags")
	}
	if cmd.IsSet("collision") {
		cfg.Conversion.Collision = cmd.String("collision")
	}
	if cmd.IsSet("continue-on-error") {
		cfg.Conversion.ContinueOnError = cmd.Bool("continue-on-error")
	}
	if cmd.IsSet("overwrite-existing") {
		cfg.Conversion.OverwriteExisting = cmd.Bool("overwrite-existing")
	}
	if cmd.IsSet("workers") {
		cfg.Conversion.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

func runConvert(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, func(cfg *internal.Config) {
		if src := cmd.Args().Get(0); src != "" {
			cfg.Source.Path = src
		}
		if dst := cmd.Args().Get(1); dst != "" {
			cfg.Destination.Path = dst
		}
	})
	if err != nil {
		return err
	}

	_, err = internal.RunConvert(ctx, internal.WithConfig(cfg), internal.WithOutput(os.Stdout))
	switch {
	case err == nil:
		return nil
	case converter.IsPartial(err):
		return fmt.Errorf("some pages failed: %w", err)
	default:
		return fmt.Errorf("convert: %w", err)
	}
}

func runInspect(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errors.New("inspect: page name required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunInspect(ctx, name, cmd.Bool("vault"),
		internal.WithConfig(cfg), internal.WithOutput(os.Stdout))
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, version, internal.WithConfig(cfg))
}

func conversionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "category-tags",
			Usage: "Rewrite CategoryName words into #Name tags",
		},
		&cli.StringFlag{
			Name:  "collision",
			Usage: "What to do when two pages share an output name: overwrite, error or suffix",
		},
		&cli.BoolFlag{
			Name:  "continue-on-error",
			Usage: "Keep converting after a page fails",
		},
		&cli.BoolFlag{
			Name:  "overwrite-existing",
			Usage: "Replace pages already present in the destination (--overwrite-existing=false skips them)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Number of pages converted concurrently",
		},
	}
}

func pathFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "WikidPad wiki folder",
			Sources: cli.EnvVars("WIKIPORT_SOURCE"),
		},
		&cli.StringFlag{
			Name:    "destination",
			Aliases: []string{"d"},
			Usage:   "Obsidian vault folder",
			Sources: cli.EnvVars("WIKIPORT_DESTINATION"),
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "wikiport",
		Usage:   "Convert WikidPad wikis into Obsidian vaults and browse the result",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert every page of a WikidPad wiki into <destination>/<name>.md",
				ArgsUsage: "[source] [destination]",
				Flags:     append(pathFlags(), conversionFlags()...),
				Action:    runConvert,
			},
			{
				Name:      "inspect",
				Usage:     "Print the headers, links, tags, aliases and attributes of a page as JSON",
				ArgsUsage: "<page>",
				Flags: append(pathFlags(), &cli.BoolFlag{
					Name:  "vault",
					Usage: "Read the page from the Obsidian vault instead of the WikidPad wiki",
				}),
				Action: runInspect,
			},
			{
				Name:  "serve",
				Usage: "Serve the converted vault over HTTP",
				Flags: append(append(pathFlags(), conversionFlags()...), &cli.IntFlag{
					Name:  "port",
					Usage: "HTTP port",
				}),
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the converter and the vault as MCP tools on stdio",
				Flags:  append(pathFlags(), conversionFlags()...),
				Action: runMCP,
			},
		},
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, apperr.ErrNotFound) && !converter.IsPartial(err):
		return exitMissingSource
	default:
		return exitFailure
	}
}

func main() {
	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
	}
	os.Exit(exitCode(err))
}
