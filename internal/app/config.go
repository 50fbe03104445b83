package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/receiptdeck/qbo-backend/internal/intuit"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different backends supported for the
// stored token record.
type TokenStorageType string

const (
	TokenStorageTypePostgres TokenStorageType = "postgres"
	TokenStorageTypeFile     TokenStorageType = "file"
	TokenStorageTypeKeyring  TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "0.0.0.0"
	DefaultConfigServerPort      = 8080
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigFrontendURL     = "http://localhost:3000"
	DefaultConfigAPIKey          = "devkey"
	DefaultConfigStorageFile     = "tokens.json"
	DefaultConfigIntuitBaseURL   = intuit.ProductionBaseURL
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// IntuitConfig holds the QuickBooks OAuth client and resource API settings.
// Client id and secret are deliberately not required here: the connect route
// reports their absence instead (unconnected deployments can still serve
// health/CORS traffic).
type IntuitConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri" validate:"omitempty,url"`
	RealmID      string `json:"realm_id"` // default tenant when neither record nor exchange supplies one
	BaseURL      string `json:"base_url" validate:"required,url"`
}

// FrontendConfig holds the frontend origin: the post-callback redirect target
// and the sole allowed CORS origin.
type FrontendConfig struct {
	URL string `json:"url" validate:"required,url"`
}

// APIConfig holds the receipts API key.
type APIConfig struct {
	Key string `json:"key" validate:"required"`
}

// StorageConfig describes where the token record is persisted. The backend is
// chosen once at startup: postgres when a DSN is configured, the flat file
// otherwise, unless a type is set explicitly.
type StorageConfig struct {
	Type        TokenStorageType `json:"type" validate:"required,oneof=postgres file keyring"`
	DSN         string           `json:"dsn,omitempty"`          // for postgres storage
	File        string           `json:"file,omitempty"`         // for file storage: path to token file
	KeyringUser string           `json:"keyring_user,omitempty"` // for keyring storage: user identifier
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json"`
	Debug     bool           `json:"debug"`
	Server    ServerConfig   `json:"server"`
	Shutdown  ShutdownConfig `json:"shutdown"`
	Intuit    IntuitConfig   `json:"intuit"`
	Frontend  FrontendConfig `json:"frontend"`
	API       APIConfig      `json:"api"`
	Storage   StorageConfig  `json:"storage"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Intuit.BaseURL == "" {
		c.Intuit.BaseURL = DefaultConfigIntuitBaseURL
	}
	if c.Frontend.URL == "" {
		c.Frontend.URL = DefaultConfigFrontendURL
	}
	if c.API.Key == "" {
		c.API.Key = DefaultConfigAPIKey
	}

	// Backend selection: postgres when a DSN is configured, file otherwise.
	if c.Storage.Type == "" {
		if c.Storage.DSN != "" {
			c.Storage.Type = TokenStorageTypePostgres
		} else {
			c.Storage.Type = TokenStorageTypeFile
		}
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			c.Storage.File = DefaultConfigStorageFile
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	case TokenStorageTypePostgres:
		// dsn must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and storage
// cross-checks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case TokenStorageTypePostgres:
		if c.Storage.DSN == "" {
			return errors.New("dsn required for postgres storage")
		}
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
