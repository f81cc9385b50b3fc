package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the global server configuration
type Config struct {
	// General configuration
	General struct {
		// DataDir is where the database, TLS material, and other state live
		DataDir string `yaml:"dataDir"`

		// LogLevel is the logging level ("debug", "info", "warn", "error")
		LogLevel string `yaml:"logLevel"`
	} `yaml:"general"`

	// TCP listener configuration
	Server struct {
		// Binds is the list of addresses to listen on
		Binds []string `yaml:"binds"`

		// Port is the TLS listen port
		Port int `yaml:"port"`

		// DatabasePath overrides the default database location
		DatabasePath string `yaml:"databasePath"`

		// CertFile is the TLS certificate path
		CertFile string `yaml:"certFile"`

		// KeyFile is the TLS private key path
		KeyFile string `yaml:"keyFile"`

		// UPnP requests a router port mapping at startup
		UPnP bool `yaml:"upnp"`

		// HandshakeTimeout bounds the wait for the Handshake frame
		HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`

		// LoginTimeout bounds the wait for the Login frame
		LoginTimeout time.Duration `yaml:"loginTimeout"`

		// OutboundQueueSize is the per-session outbound frame bound
		OutboundQueueSize int `yaml:"outboundQueueSize"`
	} `yaml:"server"`

	// WebSocket bridge configuration
	WebSocket struct {
		// Enabled enables the WebSocket endpoint
		Enabled bool `yaml:"enabled"`

		// Address to bind the WebSocket server
		Address string `yaml:"address"`

		// Port to bind the WebSocket server
		Port int `yaml:"port"`
	} `yaml:"websocket"`

	// Locale catalog configuration
	Locales struct {
		// OverrideDir layers extra catalogs over the embedded ones
		OverrideDir string `yaml:"overrideDir"`

		// Watch hot-reloads the override directory on change
		Watch bool `yaml:"watch"`
	} `yaml:"locales"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.General.DataDir = defaultDataDir()
	cfg.General.LogLevel = "info"

	cfg.Server.Binds = []string{"0.0.0.0"}
	cfg.Server.Port = 7500
	cfg.Server.HandshakeTimeout = 10 * time.Second
	cfg.Server.LoginTimeout = 30 * time.Second
	cfg.Server.OutboundQueueSize = 256

	cfg.WebSocket.Enabled = false
	cfg.WebSocket.Address = "127.0.0.1"
	cfg.WebSocket.Port = 7501

	cfg.Locales.Watch = true

	return cfg
}

// LoadConfig reads the file at path, applying defaults for absent fields.
// A missing file returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// DatabasePath resolves the database location: explicit override first,
// otherwise nexus.db in the data directory.
func (c *Config) DatabasePath() string {
	if c.Server.DatabasePath != "" {
		return c.Server.DatabasePath
	}
	return filepath.Join(c.General.DataDir, "nexus.db")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "nexus")
	}
	return "."
}
