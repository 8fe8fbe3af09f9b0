package internal

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/wikiport/internal/converter"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Source      SourceConfig      `yaml:"source"`
	Destination DestinationConfig `yaml:"destination"`
	Conversion  ConversionConfig  `yaml:"conversion"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Destination.Validate(); err != nil {
		return err
	}
	if err := c.Conversion.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	Log  LogConfig  `yaml:"log"`
	HTTP HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate normalises case and validates the log configuration.
func (c *LogConfig) Validate() error {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.In(LogFormatJSON, LogFormatText)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SourceConfig points at the WikidPad wiki to convert. It may be left empty
// when only browsing an existing vault.
type SourceConfig struct {
	Path string `yaml:"path"`
}

// DestinationConfig holds the path of the Obsidian vault written by
// conversions and served by the API.
type DestinationConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the destination configuration.
func (c *DestinationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ConversionConfig tunes batch conversion. OverwriteExisting=false leaves
// pages already present in the destination untouched.
type ConversionConfig struct {
	CategoryTags      bool   `yaml:"category_tags"`
	Collision         string `yaml:"collision"`
	ContinueOnError   bool   `yaml:"continue_on_error"`
	OverwriteExisting bool   `yaml:"overwrite_existing"`
	Workers           int    `yaml:"workers"`
}

// Validate validates the conversion configuration.
func (c *ConversionConfig) Validate() error {
	if c.Collision == "" {
		c.Collision = string(converter.CollisionOverwrite)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Collision, validation.In(
			string(converter.CollisionOverwrite),
			string(converter.CollisionError),
			string(converter.CollisionSuffix),
		)),
		validation.Field(&c.Workers, validation.Min(1), validation.Max(64)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			Log: LogConfig{
				Level:  "info",
				Format: LogFormatJSON,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Destination: DestinationConfig{
			Path: "./vault",
		},
		Conversion: ConversionConfig{
			Collision:         string(converter.CollisionOverwrite),
			OverwriteExisting: true,
			Workers:           1,
		},
		SQLite: SQLiteConfig{
			Path: "./wikiport.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

// ConverterOptions translates the conversion settings into converter options.
func (c *Config) ConverterOptions() []converter.Option {
	return []converter.Option{
		converter.WithEngineOptions(converter.WithCategoryTags(c.Conversion.CategoryTags)),
		converter.WithCollision(converter.Collision(c.Conversion.Collision)),
		converter.WithContinueOnError(c.Conversion.ContinueOnError),
		converter.WithOverwriteExisting(c.Conversion.OverwriteExisting),
		converter.WithWorkers(c.Conversion.Workers),
	}
}
