package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/pinpress/internal/ipfs"
	"github.com/starford/pinpress/internal/render"
	"github.com/starford/pinpress/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Settings sources.
const (
	SettingsSourceKV   = "kv"
	SettingsSourceFile = "file"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	IPFS     IPFSConfig        `yaml:"ipfs"`
	Render   RenderConfig      `yaml:"render"`
	Storage  StorageConfig     `yaml:"storage"`
	Settings SettingsConfig    `yaml:"settings"`
	Auth     AuthConfig        `yaml:"auth"`
	CORS     CORSConfig        `yaml:"cors"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.IPFS, &c.Render, &c.Storage, &c.Settings, &c.Auth,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
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

// IPFSConfig holds the endpoints used when the settings source leaves a
// field blank.
type IPFSConfig struct {
	APIEndpoint string `yaml:"api_endpoint"`
	Gateway     string `yaml:"gateway"`
}

// Validate validates the IPFS configuration.
func (c *IPFSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIEndpoint, validation.Required, is.URL),
		validation.Field(&c.Gateway, validation.Required, is.URL),
	)
}

// Defaults returns the configured endpoints as client defaults.
func (c *IPFSConfig) Defaults() ipfs.Settings {
	return ipfs.Settings{APIEndpoint: c.APIEndpoint, Gateway: c.Gateway}
}

// RenderConfig controls how the page header date is written.
type RenderConfig struct {
	Locale   string `yaml:"locale"`
	Timezone string `yaml:"timezone"`
}

// Validate validates the render configuration.
func (c *RenderConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Locale, validation.In(string(render.LocaleZhCN), string(render.LocaleEnUS))),
	); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("render: timezone: %w", err)
	}
	return nil
}

// Location resolves Timezone. Empty means the local zone.
func (c *RenderConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// StorageConfig selects the KV backend holding the history and settings.
//
// Path is a directory for "fs" and a database file for "sqlite".
type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(storage.DriverFS, storage.DriverSQLite, storage.DriverRedis, storage.DriverMemory)),
		validation.Field(&c.Path, validation.When(c.Driver == storage.DriverFS || c.Driver == storage.DriverSQLite, validation.Required)),
	); err != nil {
		return err
	}
	if c.Driver == storage.DriverRedis {
		return validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.Addr, validation.Required),
			validation.Field(&c.Redis.DB, validation.Min(0)),
		)
	}
	return nil
}

// Options converts the configuration for storage.Open.
func (c *StorageConfig) Options() storage.Options {
	return storage.Options{
		Driver: c.Driver,
		Path:   c.Path,
		Redis: storage.RedisOptions{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		},
	}
}

// SettingsConfig selects where user endpoint settings come from.
//
// Source controls how they are read:
//   - "kv" (default): a JSON document in the storage backend, editable via PUT /api/settings.
//   - "file": a YAML file at Path, re-read on every upload and watched for changes.
type SettingsConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
}

// Validate validates the settings configuration.
func (c *SettingsConfig) Validate() error {
	if c.Source == "" {
		c.Source = SettingsSourceKV
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Source, validation.In(SettingsSourceKV, SettingsSourceFile)),
		validation.Field(&c.Path, validation.When(c.Source == SettingsSourceFile, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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

// CORSConfig lists origins allowed to call the API from a browser, such as
// the extension origin "chrome-extension://<id>". Empty disables CORS.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	def := ipfs.DefaultSettings()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		IPFS: IPFSConfig{
			APIEndpoint: def.APIEndpoint,
			Gateway:     def.Gateway,
		},
		Render: RenderConfig{
			Locale: string(render.LocaleZhCN),
		},
		Storage: StorageConfig{
			Driver: storage.DriverFS,
			Path:   "./data",
		},
		Settings: SettingsConfig{
			Source: SettingsSourceKV,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
